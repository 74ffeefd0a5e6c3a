package withdrawal

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Request is a withdrawal as submitted by the user. Amount is kept as text
// so a non-numeric value can be reported like any other field error.
type Request struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	AccountNumber string `json:"accountNumber"`
	RoutingCode   string `json:"routingCode"`
	Amount        string `json:"amount"`
}

// Validated is a Request that passed Validate.
type Validated struct {
	Name          string
	Email         string
	AccountNumber string
	RoutingCode   string
	Amount        decimal.Decimal
}

var minAmount = decimal.NewFromInt(1)

// maxAmountPlaces keeps every withdrawal payable in whole cents.
const maxAmountPlaces = 2

// Validate checks req against the live balance and reports every field
// violation at once. It has no side effects. Debit re-checks the balance,
// so passing here is not a guarantee of funds.
func Validate(req Request, balance decimal.Decimal) (Validated, error) {
	var v []Violation

	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < 2 {
		v = append(v, Violation{Field: FieldName, Message: "Name must be at least 2 characters."})
	}

	email := strings.TrimSpace(req.Email)
	if !validEmail(email) {
		v = append(v, Violation{Field: FieldEmail, Message: "Please enter a valid email address."})
	}

	account := strings.TrimSpace(req.AccountNumber)
	switch {
	case len(account) < 8:
		v = append(v, Violation{Field: FieldAccountNumber, Message: "Account number must be at least 8 digits."})
	case len(account) > 10:
		v = append(v, Violation{Field: FieldAccountNumber, Message: "Account number must be at most 10 digits."})
	}

	if !digitsOnly(account) {
		v = append(v, Violation{Field: FieldAccountNumber, Message: "Account number must contain only numbers."})
	}

	routing := strings.TrimSpace(req.RoutingCode)
	if len(routing) != 6 {
		v = append(v, Violation{Field: FieldRoutingCode, Message: "Routing code must be 6 digits."})
	}

	if !digitsOnly(routing) {
		v = append(v, Violation{Field: FieldRoutingCode, Message: "Routing code must contain only numbers."})
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	switch {
	case err != nil:
		v = append(v, Violation{Field: FieldAmount, Message: "Amount must be a number."})
	case !amount.Equal(amount.Truncate(maxAmountPlaces)):
		v = append(v, Violation{Field: FieldAmount, Message: "Amount must have at most 2 decimal places."})
	case amount.LessThan(minAmount):
		v = append(v, Violation{Field: FieldAmount, Message: "Withdrawal amount must be at least 1."})
	case amount.GreaterThan(balance):
		v = append(v, Violation{Field: FieldAmount, Message: "Maximum withdrawal amount is " + balance.String() + "."})
	}

	if len(v) > 0 {
		return Validated{}, &ValidationError{Violations: v}
	}

	return Validated{
		Name:          name,
		Email:         email,
		AccountNumber: account,
		RoutingCode:   routing,
		Amount:        amount,
	}, nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// validEmail accepts a bare address whose domain has at least one dot.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}

	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	dot := strings.IndexByte(domain, '.')

	return dot > 0 && !strings.HasSuffix(domain, ".")
}

// MaskAccount hides every digit but the last four.
func MaskAccount(account string) string {
	if len(account) <= 4 {
		return account
	}

	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}

// FormatRoutingCode renders a six digit code as 12-34-56. Anything else is
// returned unchanged.
func FormatRoutingCode(code string) string {
	if len(code) != 6 {
		return code
	}

	return code[0:2] + "-" + code[2:4] + "-" + code[4:6]
}
