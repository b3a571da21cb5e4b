// Package fingerprint computes the content-only tamper-evidence hash over
// attachment bytes that the Approval Engine binds approvals to (§4.6).
package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"

	"useruploadagent/pkg/model"
)

// Of computes a model.Fingerprint over raw attachment bytes. filename and
// size are descriptive metadata carried alongside the hash, not inputs to
// it (§4.6: "file-content-only — filename is descriptive, not part of the
// hash").
func Of(filename string, content []byte) model.Fingerprint {
	sum := sha256.Sum256(content)
	return model.Fingerprint{
		Filename:     filename,
		Size:         int64(len(content)),
		SHA256Base64: base64.StdEncoding.EncodeToString(sum[:]),
	}
}

// Matches reports whether a fingerprint still matches the current bytes of
// the attachment it describes — used by the Approval Engine to detect a
// changed attachment since the marker was posted (§4.7 invalidation).
func Matches(fp model.Fingerprint, content []byte) bool {
	current := Of(fp.Filename, content)
	return current.SHA256Base64 == fp.SHA256Base64
}
