// Package hiscore models the Old School RuneScape hiscore domain: account types,
// categories, leaderboard records and player stat records.
package hiscore

import (
	"fmt"
	"sort"
	"strings"
)

// AccountType selects one of the hiscore tables maintained per game mode.
type AccountType string

// Known account types. The value is the path segment the hiscore site uses.
const (
	AccountRegular  AccountType = "hiscore_oldschool"
	AccountPure     AccountType = "hiscore_oldschool_skiller_defence"
	AccountIronman  AccountType = "hiscore_oldschool_ironman"
	AccountUltimate AccountType = "hiscore_oldschool_ultimate"
	AccountHardcore AccountType = "hiscore_oldschool_hardcore_ironman"
	AccountSkiller  AccountType = "hiscore_oldschool_skiller"
)

var accountNames = map[string]AccountType{
	"regular": AccountRegular,
	"pure":    AccountPure,
	"im":      AccountIronman,
	"uim":     AccountUltimate,
	"hc":      AccountHardcore,
	"skiller": AccountSkiller,
}

// ParseAccountType resolves a short account name such as "im" or "regular".
func ParseAccountType(name string) (AccountType, error) {
	if acc, ok := accountNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return acc, nil
	}
	valid := make([]string, 0, len(accountNames))
	for k := range accountNames {
		valid = append(valid, k)
	}
	sort.Strings(valid)
	return "", fmt.Errorf("unknown account type %q, valid values [%s]", name, strings.Join(valid, ", "))
}

// Name returns the short name of the account type.
func (a AccountType) Name() string {
	for k, v := range accountNames {
		if v == a {
			return k
		}
	}
	return string(a)
}

// String implements fmt.Stringer.
func (a AccountType) String() string {
	return a.Name()
}
