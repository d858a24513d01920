package agent

import (
	"time"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction represents either a static instruction string or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// NewInstructionFromTemplate renders text on every call with the current
// time in loc:
//
//	{{.Now}}   RFC 3339 timestamp
//	{{.Today}} e.g. "Monday, May 6, 2024"
//	{{.Zone}}  IANA zone name
//
// A nil now uses time.Now; a nil loc uses time.Local.
func NewInstructionFromTemplate(text string, loc *time.Location, now func() time.Time) Instruction {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return NewInstructionFromFunc(func(*core.RunContext) (string, error) {
		t := now().In(loc)
		return util.RenderTemplate(text, map[string]any{
			"Now":   t.Format(time.RFC3339),
			"Today": t.Format("Monday, January 2, 2006"),
			"Zone":  loc.String(),
		})
	})
}

// IsZero reports whether the instruction was never set.
func (i Instruction) IsZero() bool { return i.text == "" && i.provider == nil }

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc)
	}
	return i.text, nil
}
