package env

import (
	"strings"

	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// NamingConvention converts a flag name to an ENV variable name, with the configured prefix.
// For example "etcd-endpoint" -> "GRID_ETCD_ENDPOINT".
type NamingConvention struct {
	prefix string
}

func NewNamingConvention(prefix string) *NamingConvention {
	return &NamingConvention{prefix: prefix}
}

func (n *NamingConvention) FlagToEnv(flagName string) string {
	if len(flagName) == 0 {
		panic(errors.New("flag name cannot be empty"))
	}
	return n.prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(flagName))
}
