// Package syllabus decides whether a question is in scope before any network call.
package syllabus

import (
	"strings"
	"sync/atomic"
)

// Filter classifies questions against a Policy. It is safe for concurrent use;
// the policy can be swapped while questions are being classified.
type Filter struct {
	policy atomic.Pointer[Policy]
}

// New creates a Filter using p.
func New(p Policy) *Filter {
	f := &Filter{}
	f.SetPolicy(p)
	return f
}

// SetPolicy replaces the active policy.
func (f *Filter) SetPolicy(p Policy) {
	n := p.normalized()
	f.policy.Store(&n)
}

// Policy returns the active (normalized) policy.
func (f *Filter) Policy() Policy {
	return *f.policy.Load()
}

// IsOutOfSyllabus reports whether question should be rejected: it contains no
// allow-listed topic and at least one blocked keyword.
func (f *Filter) IsOutOfSyllabus(question string) bool {
	p := f.policy.Load()
	q := fold(question)

	for _, topic := range p.Allow {
		if strings.Contains(q, topic) {
			return false
		}
	}
	for _, word := range p.Block {
		if strings.Contains(q, word) {
			return true
		}
	}
	return false
}

// RejectionPhrase is the sentence the tutor and the upstream model both use
// to refuse an out-of-syllabus question. Answers containing it are not cached.
const RejectionPhrase = "এই প্ৰশ্নটো SEBA দশম শ্ৰেণীৰ পাঠ্যক্ৰমৰ ভিতৰত নাই"

// IsRejection reports whether answer is a syllabus refusal.
func IsRejection(answer string) bool {
	return strings.Contains(answer, RejectionPhrase)
}
