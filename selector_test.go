package fowl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySelector_resolve(t *testing.T) {
	b, d, f := []byte("b"), []byte("d"), []byte("f")
	tests := []struct {
		sel  KeySelector
		want string
	}{
		{FirstGreaterOrEqual(b), "b"},
		{FirstGreaterOrEqual([]byte("c")), "d"},
		{FirstGreaterOrEqual([]byte("a")), "b"},
		{FirstGreaterOrEqual([]byte("g")), "<end>"},
		{FirstGreaterThan(b), "d"},
		{FirstGreaterThan([]byte("c")), "d"},
		{FirstGreaterThan(f), "<end>"},
		{LastLessThan(d), "b"},
		{LastLessThan([]byte("c")), "b"},
		{LastLessThan(b), "<begin>"},
		{LastLessThan([]byte("z")), "f"},
		{LastLessOrEqual(d), "d"},
		{LastLessOrEqual([]byte("e")), "d"},
		{LastLessOrEqual([]byte("a")), "<begin>"},
		{LastLessOrEqual(f), "f"},
		{FirstGreaterOrEqual(b).Next(), "d"},
		{FirstGreaterOrEqual(b).Add(2), "f"},
		{FirstGreaterOrEqual(b).Add(3), "<end>"},
		{LastLessOrEqual(f).Prev(), "d"},
		{LastLessOrEqual(d).Next(), "f"},
		{LastLessThan(d).Next(), "d"},
	}
	eachTestEngine(t, func(t *testing.T, e Engine) {
		fill(t, e, "b", "d", "f")
		err := e.View(context.Background(), func(tx EngineTx) error {
			for _, tt := range tests {
				c := tx.Cursor()
				got := tt.sel.resolve(c)
				assert.Equal(t, tt.want, resolvedString(got), "%v", tt.sel)
				require.NoError(t, c.Close())
			}
			return nil
		})
		require.NoError(t, err)
	})
}

func resolvedString(p position) string {
	if p.state == atKey {
		return string(p.key)
	}
	return p.String()
}

func TestKeySelector_String(t *testing.T) {
	assert.Equal(t, "firstGreaterOrEqual(61)", FirstGreaterOrEqual([]byte("a")).String())
	assert.Equal(t, "firstGreaterThan(61)", FirstGreaterThan([]byte("a")).String())
	assert.Equal(t, "lastLessThan(61)", LastLessThan([]byte("a")).String())
	assert.Equal(t, "firstGreaterThan(61)", LastLessOrEqual([]byte("a")).Next().String())
	assert.Equal(t, "lastLessThan(61)-1", LastLessThan([]byte("a")).Prev().String())
	assert.Equal(t, "firstGreaterOrEqual(61)+2", FirstGreaterOrEqual([]byte("a")).Add(2).String())
}

func TestGetRange(t *testing.T) {
	eachTestEngine(t, func(t *testing.T, e Engine) {
		fill(t, e, "a", "b", "c", "d", "e")
		scan := func(begin, end KeySelector) []string {
			var out []string
			err := e.View(context.Background(), func(tx EngineTx) error {
				c := getRange(tx, begin, end, nil)
				for c.Next() {
					out = append(out, string(c.Key()))
					assert.Equal(t, "v"+string(c.Key()), string(c.Value()))
				}
				return c.Close()
			})
			require.NoError(t, err)
			return out
		}
		deepEqual(t, scan(FirstGreaterOrEqual([]byte("b")), FirstGreaterOrEqual([]byte("d"))), []string{"b", "c"})
		deepEqual(t, scan(FirstGreaterThan([]byte("b")), FirstGreaterThan([]byte("d"))), []string{"c", "d"})
		deepEqual(t, scan(FirstGreaterOrEqual(nil), FirstGreaterOrEqual([]byte("z"))), []string{"a", "b", "c", "d", "e"})
		deepEqual(t, scan(FirstGreaterOrEqual([]byte("b")), LastLessOrEqual([]byte("c")).Next()), []string{"b", "c"})
		isempty(t, scan(FirstGreaterOrEqual([]byte("d")), FirstGreaterOrEqual([]byte("b"))))
		isempty(t, scan(FirstGreaterOrEqual([]byte("x")), FirstGreaterOrEqual([]byte("z"))))
		isempty(t, scan(FirstGreaterOrEqual(nil), LastLessThan([]byte("a"))))
	})
}

func TestPrefixRange(t *testing.T) {
	eachTestEngine(t, func(t *testing.T, e Engine) {
		err := e.RunAtomic(context.Background(), func(tx EngineTx) error {
			for _, p := range []KeyPath{Path("a"), Path("a", "x"), Path("a", "y", 1), Path("ab", "z"), Path("b")} {
				if err := tx.Set(p.Pack(), []byte{1}); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		var got []string
		err = e.View(context.Background(), func(tx EngineTx) error {
			c := prefixRange(tx, Path("a"), nil)
			for c.Next() {
				got = append(got, hexstr(c.Key()))
			}
			return c.Close()
		})
		require.NoError(t, err)
		deepEqual(t, got, []string{hexstr(Path("a", "x").Pack()), hexstr(Path("a", "y", 1).Pack())})
	})
}
