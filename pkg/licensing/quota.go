package licensing

import (
	"fmt"
	"strings"
)

// BillingMode is how the AI add-on is billed.
type BillingMode string

const (
	BillingFixed     BillingMode = "fixed"
	BillingPayPerUse BillingMode = "pay_per_use"
)

// ParseBillingMode normalises a billing mode string.
func ParseBillingMode(s string) (BillingMode, error) {
	switch BillingMode(strings.ToLower(strings.TrimSpace(s))) {
	case BillingFixed:
		return BillingFixed, nil
	case BillingPayPerUse:
		return BillingPayPerUse, nil
	default:
		return "", fmt.Errorf("unknown billing mode %q", s)
	}
}

// QuotaState is the tenant's AI counter as stored.
type QuotaState struct {
	Mode BillingMode
	Used int64
	Max  int64
}

// QuotaStatus is the quota status query result. Max and Remaining are nil
// under pay-per-use billing.
type QuotaStatus struct {
	BillingMode BillingMode `json:"billing_mode"`
	Used        int64       `json:"used"`
	Max         *int64      `json:"max"`
	Remaining   *int64      `json:"remaining"`
	Exhausted   bool        `json:"exhausted"`
}

// CheckQuota computes remaining = max(0, Max-Used) under fixed billing.
// Any mode other than pay-per-use is treated as fixed.
func CheckQuota(state QuotaState) QuotaStatus {
	if state.Mode == BillingPayPerUse {
		return QuotaStatus{BillingMode: BillingPayPerUse, Used: state.Used}
	}

	quotaMax := state.Max
	remaining := quotaMax - state.Used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		BillingMode: BillingFixed,
		Used:        state.Used,
		Max:         &quotaMax,
		Remaining:   &remaining,
		Exhausted:   remaining <= 0,
	}
}

// LimitCheckResult is the outcome of comparing usage with a resource limit.
type LimitCheckResult int

const (
	LimitAllowed LimitCheckResult = iota
	LimitSoftBlock
	LimitHardBlock
)

func (r LimitCheckResult) String() string {
	switch r {
	case LimitSoftBlock:
		return "soft_block"
	case LimitHardBlock:
		return "hard_block"
	default:
		return "allowed"
	}
}

// CheckLimit evaluates observed against limit. A limit of 0 or less is
// unlimited. Reaching 90% of the limit is a soft block (warn), reaching the
// limit is a hard block.
func CheckLimit(limit, observed int64) LimitCheckResult {
	if limit <= 0 {
		return LimitAllowed
	}
	if observed >= limit {
		return LimitHardBlock
	}
	if observed*10 >= limit*9 {
		return LimitSoftBlock
	}
	return LimitAllowed
}
