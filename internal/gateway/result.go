package gateway

import "strings"

type ResultClass int

const (
	ResultInconclusive ResultClass = iota
	ResultSuccess
	ResultFailure
)

func (c ResultClass) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	default:
		return "inconclusive"
	}
}

const SuccessCode = "0"

// Result codes the provider uses for a transaction that is definitively over.
var failureCodes = map[string]string{
	"1":    "insufficient balance",
	"17":   "rule limited",
	"26":   "system busy",
	"1001": "subscriber busy",
	"1019": "transaction expired",
	"1025": "push not delivered",
	"1032": "cancelled by user",
	"1037": "user unreachable",
	"2001": "invalid pin",
	"9999": "push request error",
}

// Classify maps a provider result code to success, failure or inconclusive.
// Anything not explicitly known (including "still processing") is inconclusive.
func Classify(code string) ResultClass {
	code = strings.TrimSpace(code)
	if code == SuccessCode {
		return ResultSuccess
	}
	if _, ok := failureCodes[code]; ok {
		return ResultFailure
	}
	return ResultInconclusive
}

// DescribeFailure returns a fallback reason when the provider sends none.
func DescribeFailure(code, desc string) string {
	if d := strings.TrimSpace(desc); d != "" {
		return d
	}
	if d, ok := failureCodes[strings.TrimSpace(code)]; ok {
		return d
	}
	return "payment failed (code " + code + ")"
}
