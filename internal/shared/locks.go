package shared

import "fmt"

// CreditLockKey builds redis keys serialising payment distribution per credit.
func CreditLockKey(creditID int64) string {
	return fmt.Sprintf("credit:%d:lock", creditID)
}
