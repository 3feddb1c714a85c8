package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tinyrange/jitlink/internal/ir"
)

// PrettyVerifierError renders err followed by the offending instruction (when
// the error points at one) and a dump of the whole function.
func PrettyVerifierError(fn *ir.Function, err *ir.VerifierError) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	if ref, ok := err.Location.(ir.InstRef); ok && fn != nil {
		fmt.Fprintf(&sb, "\n%s: %s\n\n", ref, fn.DisplayInst(ref))
	} else {
		sb.WriteByte('\n')
	}
	if fn != nil {
		sb.WriteString(fn.Display())
	}
	return sb.String()
}

// PrettyError formats verifier errors with PrettyVerifierError and anything
// else with its plain message.
func PrettyError(fn *ir.Function, err error) string {
	var verr *ir.VerifierError
	if errors.As(err, &verr) {
		return PrettyVerifierError(fn, verr)
	}
	return err.Error()
}
