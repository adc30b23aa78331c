package repo

import (
	"fmt"
	"strings"
	"time"
)

// Filters narrow order-based queries. Empty fields match everything.
type Filters struct {
	Status        string `json:"status,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

func (f Filters) Empty() bool { return f.Status == "" && f.PaymentMethod == "" }

// Range is a half-open UTC interval [Start, End) plus the local offset used
// to assign instants to calendar days.
type Range struct {
	Start    time.Time
	End      time.Time
	Interval string // e.g. "330 minutes"
}

// orderScope builds the where clause shared by every orders query. The
// first three args are always tenant, start, end.
type orderScope struct {
	where []string
	args  []any
}

func newOrderScope(alias, tenantID string, r Range, f Filters) *orderScope {
	s := &orderScope{
		where: []string{
			alias + ".tenant_id = $1",
			alias + ".created_at >= $2",
			alias + ".created_at < $3",
		},
		args: []any{tenantID, r.Start, r.End},
	}
	if f.Status != "" {
		s.add(alias+".status = $%d", f.Status)
	}
	if f.PaymentMethod != "" {
		s.add(alias+".payment_method = $%d", f.PaymentMethod)
	}
	return s
}

func (s *orderScope) add(clause string, arg any) {
	s.args = append(s.args, arg)
	s.where = append(s.where, fmt.Sprintf(clause, len(s.args)))
}

// bind appends an extra argument and returns its placeholder.
func (s *orderScope) bind(arg any) string {
	s.args = append(s.args, arg)
	return fmt.Sprintf("$%d", len(s.args))
}

func (s *orderScope) SQL() string { return strings.Join(s.where, " and ") }
