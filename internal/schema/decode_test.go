package schema

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDecode_PreservesKeyOrder(t *testing.T) {
	t.Parallel()
	v := mustDecode(t, "zeta: 1\nalpha: [a, 2, 1.5, true, null]\nmid:\n  b: x\n  a: y\n")
	o, ok := v.(*Object)
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	if got := strings.Join(o.Keys(), ","); got != "zeta,alpha,mid" {
		t.Fatalf("key order: %s", got)
	}
	alpha, _ := o.Get("alpha")
	list := alpha.([]any)
	if list[0] != "a" || list[1] != int64(2) || list[2] != 1.5 || list[3] != true || list[4] != nil {
		t.Fatalf("scalar types: %#v", list)
	}
	b, err := o.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `{"zeta":1,"alpha":["a",2,1.5,true,null],"mid":{"b":"x","a":"y"}}`; string(b) != want {
		t.Fatalf("json: got %s want %s", b, want)
	}
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"duplicate key", "a: 1\na: 2\n", "duplicate key"},
		{"merge key", "base: &b {x: 1}\nchild:\n  <<: *b\n", "merge keys"},
		{"cycle", "root: &r\n  child: *r\n", "cyclic"},
		{"syntax", "a: [1, 2\n", ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tc.src))
			if err == nil {
				t.Fatalf("expected error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %T", err)
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected message: %v", err)
			}
		})
	}
}

func TestDecode_SharedAliasIsAllowed(t *testing.T) {
	t.Parallel()
	v := mustDecode(t, "defs:\n  name: &n {type: string}\nprops:\n  first: *n\n  last: *n\n")
	o := v.(*Object)
	props, _ := o.Object("props")
	first, _ := props.Object("first")
	if s, _ := first.String("type"); s != "string" {
		t.Fatalf("alias not expanded: %v", first)
	}
}

func TestDecode_AliasesShareOneValue(t *testing.T) {
	t.Parallel()
	v := mustDecode(t, "defs:\n  name: &n {type: string}\nprops:\n  first: *n\n  last: *n\n")
	o := v.(*Object)
	defs, _ := o.Object("defs")
	props, _ := o.Object("props")
	def, _ := defs.Object("name")
	first, _ := props.Object("first")
	last, _ := props.Object("last")
	if first != last || first != def {
		t.Fatalf("expected every use of an anchor to decode to the same object")
	}
}

func TestDecode_RejectsAliasExpansionBomb(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	b.WriteString("a0: &a0 [x, x, x, x, x, x, x, x, x, x]\n")
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "a%d: &a%d [", i, i)
		for j := 0; j < 10; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "*a%d", i-1)
		}
		b.WriteString("]\n")
	}

	start := time.Now()
	_, err := Decode([]byte(b.String()))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !strings.Contains(de.Message, "expands to more than") {
		t.Fatalf("unexpected message: %v", de)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("decode took %s", took)
	}
}

func TestDecode_Empty(t *testing.T) {
	t.Parallel()
	v, err := Decode([]byte(""))
	if err != nil || v != nil {
		t.Fatalf("expected nil, nil; got %v, %v", v, err)
	}
}

func TestObject_SetDeleteOrder(t *testing.T) {
	t.Parallel()
	o := ObjectOf("a", 1, "b", 2, "c", 3)
	o.Set("b", 20)
	o.Delete("a")
	o.Set("a", 10)
	if got := strings.Join(o.Keys(), ","); got != "b,c,a" {
		t.Fatalf("keys: %s", got)
	}
	c := o.Without("c")
	if o.Len() != 3 || c.Len() != 2 {
		t.Fatalf("Without mutated receiver")
	}
}

func TestPlain(t *testing.T) {
	t.Parallel()
	p := Plain(ObjectOf("n", int64(2), "list", []any{ObjectOf("x", int64(1))}))
	m, ok := p.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", p)
	}
	if m["n"] != float64(2) {
		t.Fatalf("number not converted: %#v", m["n"])
	}
	inner := m["list"].([]any)[0].(map[string]any)
	if inner["x"] != float64(1) {
		t.Fatalf("nested number not converted: %#v", inner)
	}
}
