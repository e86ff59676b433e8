package client

import (
	"fmt"
	"regexp"
	"strconv"

	ierr "github.com/watercoop/waterbill/internal/errors"
)

// FirstAccountNumber is issued when no account has been issued before
const FirstAccountNumber = "0000-AA"

const maxAccountSequence = 9999

var accountNumberPattern = regexp.MustCompile(`^(\d{4})-([A-Z]{2})$`)

// NextAccountNumber derives the account number that follows lastIssued.
//
// The sequence runs 0000..9999 within a suffix. After 9999 the number resets
// and the second suffix letter advances; past Z the suffix wraps to AA without
// touching the first letter, so issuance repeats after 26 * 10000 numbers and
// further registrations collide until the retry budget is exhausted.
func NextAccountNumber(lastIssued string) (string, error) {
	if lastIssued == "" {
		return FirstAccountNumber, nil
	}

	m := accountNumberPattern.FindStringSubmatch(lastIssued)
	if m == nil {
		return "", ierr.NewErrorf("malformed account number %q", lastIssued).
			WithHint("The last issued account number is not in NNNN-LL format").
			WithReportableDetails(map[string]any{
				"account_number": lastIssued,
			}).
			Mark(ierr.ErrValidation)
	}

	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("The last issued account number is not in NNNN-LL format").
			Mark(ierr.ErrValidation)
	}
	suffix := []byte(m[2])

	if seq < maxAccountSequence {
		return fmt.Sprintf("%04d-%s", seq+1, suffix), nil
	}

	if suffix[1] == 'Z' {
		return fmt.Sprintf("%04d-%s", 0, "AA"), nil
	}
	suffix[1]++
	return fmt.Sprintf("%04d-%s", 0, suffix), nil
}
