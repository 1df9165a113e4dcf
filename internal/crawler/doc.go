// Package crawler defines the contracts shared by the hiscore crawling
// subsystems: the remote page and player collaborators, the error taxonomy
// they report, and the small infrastructure interfaces (clock, ids, blob
// storage, notifications) the pipelines are wired with.
package crawler
