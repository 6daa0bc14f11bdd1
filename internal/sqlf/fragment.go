// Package sqlf holds the SQL fragment builder shared by every renderer and
// the dialect rules for the backing database.
package sqlf

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Fragment is SQL text with "?" placeholders and the ordered arguments bound
// to them. It implements squirrel.Sqlizer.
type Fragment struct {
	buf  []byte
	args []any
}

var _ sq.Sqlizer = (*Fragment)(nil)

// New returns a fragment holding sql and args.
func New(sql string, args ...any) *Fragment {
	f := &Fragment{}
	return f.Append(sql).AddArgs(args...)
}

func (f *Fragment) Append(s string) *Fragment {
	f.buf = append(f.buf, s...)
	return f
}

func (f *Fragment) Appendf(format string, a ...any) *Fragment {
	f.buf = fmt.Appendf(f.buf, format, a...)
	return f
}

// AddArgs appends bind arguments without touching the text.
func (f *Fragment) AddArgs(args ...any) *Fragment {
	f.args = append(f.args, args...)
	return f
}

// AppendFragment appends o's text and arguments.
func (f *Fragment) AppendFragment(o *Fragment) *Fragment {
	if o == nil {
		return f
	}
	f.buf = append(f.buf, o.buf...)
	f.args = append(f.args, o.args...)
	return f
}

// AppendSqlizer renders a squirrel expression into f.
func (f *Fragment) AppendSqlizer(s sq.Sqlizer) error {
	sql, args, err := s.ToSql()
	if err != nil {
		return err
	}
	f.Append(sql).AddArgs(args...)
	return nil
}

// Join appends parts separated by sep.
func (f *Fragment) Join(parts []*Fragment, sep string) *Fragment {
	for i, p := range parts {
		if i > 0 {
			f.Append(sep)
		}
		f.AppendFragment(p)
	}
	return f
}

func (f *Fragment) SQL() string { return string(f.buf) }

// Args returns a copy of the bind arguments.
func (f *Fragment) Args() []any {
	out := make([]any, len(f.args))
	copy(out, f.args)
	return out
}

func (f *Fragment) IsEmpty() bool { return len(f.buf) == 0 }

// Clone returns an independent copy.
func (f *Fragment) Clone() *Fragment {
	return &Fragment{
		buf:  append([]byte(nil), f.buf...),
		args: append([]any(nil), f.args...),
	}
}

func (f *Fragment) ToSql() (string, []any, error) {
	return f.SQL(), f.Args(), nil
}

func (f *Fragment) String() string { return f.SQL() }

// Indent prefixes every line but the first with prefix.
func Indent(sql, prefix string) string {
	return strings.ReplaceAll(sql, "\n", "\n"+prefix)
}

// NamedParam is the placeholder argument emitted for a reference to a
// declared query parameter. It is replaced by a value at bind time.
type NamedParam struct {
	Name string
}

func (p NamedParam) String() string { return "@" + p.Name }
