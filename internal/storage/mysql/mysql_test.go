package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/connector"
)

func TestUpsert(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		cols, keys []string
		want       string
	}{
		"updates non key columns": {
			cols: []string{"id", "name"},
			keys: []string{"id"},
			want: "INSERT INTO `app`.`users` (`id`, `name`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)",
		},
		"key only row": {
			cols: []string{"id"},
			keys: []string{"id"},
			want: "INSERT INTO `app`.`users` (`id`) VALUES (?) ON DUPLICATE KEY UPDATE `id` = VALUES(`id`)",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, upsert("app.users", tc.cols, tc.keys))
		})
	}
}

func TestPrepareDSNEnablesParseTime(t *testing.T) {
	t.Parallel()

	dsn, err := prepareDSN("user:pw@tcp(localhost:3306)/shop")
	require.NoError(t, err)
	assert.True(t, strings.Contains(dsn, "parseTime=true"), dsn)

	_, err = prepareDSN("not a dsn")
	assert.Error(t, err)
}

func TestColumnsQuery(t *testing.T) {
	t.Parallel()

	q, args := columnsQuery("orders")
	assert.Contains(t, q, "DATABASE()")
	assert.Equal(t, []any{nil, "orders"}, args)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	reg := connector.NewRegistry()
	Register(reg)
	assert.True(t, reg.HasSource(Type))
	assert.True(t, reg.HasDestination(Type))
	assert.Equal(t, "TRUNCATE TABLE `a`", Backend().Truncate("a"))
}
