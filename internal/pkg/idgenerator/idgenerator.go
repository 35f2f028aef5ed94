// nolint: gochecknoglobals
package idgenerator

import (
	"github.com/gofrs/uuid/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	EtcdNamespaceForE2ETestLength = 10
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// TaskId generates a unique task identifier.
// IDs are time-ordered, so task records are stored in etcd in the creation order.
func TaskId() string {
	return uuid.Must(uuid.NewV7()).String()
}

func EtcdNamespaceForTest() string {
	return gonanoid.MustGenerate(alphabet, EtcdNamespaceForE2ETestLength)
}

// Random generates a random string of the given length.
func Random(length int) string {
	return gonanoid.MustGenerate(alphabet, length)
}
