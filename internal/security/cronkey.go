package security

import (
	"golang.org/x/crypto/bcrypt"
)

// CronKeyChecker verifies the key presented to the HTTP reconciliation trigger.
type CronKeyChecker struct {
	hash []byte
}

// NewCronKeyChecker takes a bcrypt hash. An empty hash refuses every key.
func NewCronKeyChecker(hash string) *CronKeyChecker {
	return &CronKeyChecker{hash: []byte(hash)}
}

func (c *CronKeyChecker) Enabled() bool {
	return c != nil && len(c.hash) > 0
}

func (c *CronKeyChecker) Check(key string) bool {
	if !c.Enabled() || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.hash, []byte(key)) == nil
}

// HashCronKey produces the value stored in cron.api_key_hash.
func HashCronKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
