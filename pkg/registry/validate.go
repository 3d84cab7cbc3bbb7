package registry

import (
	"fmt"
	"regexp"

	"github.com/pabra/hilfmir/internal/errors"
)

var (
	validNamePattern   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,63}$`)
	validPubKeyPattern = regexp.MustCompile(`^(ssh-rsa [a-zA-Z0-9/=+]+)(:? .*)?$`)
)

// ValidateName checks that name starts with a letter and is followed by
// 2 to 63 letters, digits or underscores.
func ValidateName(name string) error {
	if !validNamePattern.MatchString(name) {
		return errors.New(errors.KindNameInvalid,
			fmt.Sprintf("Name %q does not match expression %q", name, validNamePattern.String()),
			"Use 3-64 characters: a letter followed by letters, digits or '_'")
	}
	return nil
}

// CleanPublicKey validates an RSA public key and returns it without its
// trailing comment.
func CleanPublicKey(raw string) (string, error) {
	m := validPubKeyPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", errors.New(errors.KindInvalidPublicKey,
			fmt.Sprintf("Public key %q does not match expression %q", raw, validPubKeyPattern.String()),
			"Paste the content of the .pub file created by ssh-keygen -t rsa")
	}
	return m[1], nil
}
