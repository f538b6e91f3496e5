package cli

import (
	"fmt"
	"io"

	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

// PrintError prints err to w. Structured errors get the What/Why/Fix form;
// verbose adds the code and cause.
func PrintError(w io.Writer, err error, verbose bool) {
	if kerr := kerrors.AsKickoffError(err); kerr != nil {
		fmt.Fprintln(w, kerr.UserMessage())
		if verbose {
			fmt.Fprintf(w, "\nCode: %s\n", kerr.Code)
			if kerr.Cause != nil {
				fmt.Fprintf(w, "Cause: %v\n", kerr.Cause)
			}
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
