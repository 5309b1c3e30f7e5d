package container

import (
	"context"
	"testing"

	"github.com/openfed/openfed/pkg/federation"
)

func TestContainerGetExport(t *testing.T) {
	echo := func(ctx context.Context, fn string, input []byte) ([]byte, error) {
		return []byte(fn + ":" + string(input)), nil
	}

	c := NewBuilder("checkout").
		Version("1.4.0").
		AddExport("Cart", "cart_render").
		AddExport("Pay", "").
		Invoker(echo).
		Build()

	t.Run("known export", func(t *testing.T) {
		m, err := c.GetExport(context.Background(), "Cart")
		if err != nil {
			t.Fatalf("get export failed: %v", err)
		}
		if m.Name() != "Cart" {
			t.Fatalf("unexpected module name %q", m.Name())
		}
		if m.Container() != "checkout" {
			t.Fatalf("unexpected owning container %q", m.Container())
		}

		out, err := m.Invoke(context.Background(), "", []byte("hi"))
		if err != nil {
			t.Fatalf("invoke failed: %v", err)
		}
		if string(out) != "cart_render:hi" {
			t.Fatalf("unexpected output %q", out)
		}
	})

	t.Run("module handle is memoized", func(t *testing.T) {
		first, err := c.GetExport(context.Background(), "Cart")
		if err != nil {
			t.Fatal(err)
		}
		second, err := c.GetExport(context.Background(), "Cart")
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Fatal("repeated lookups should return the same module handle")
		}
	})

	t.Run("function defaults to export name", func(t *testing.T) {
		m, err := c.GetExport(context.Background(), "Pay")
		if err != nil {
			t.Fatal(err)
		}
		out, err := m.Invoke(context.Background(), "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != "Pay:" {
			t.Fatalf("unexpected output %q", out)
		}
	})

	t.Run("unknown export", func(t *testing.T) {
		_, err := c.GetExport(context.Background(), "Nope")
		if !federation.IsExportNotFound(err) {
			t.Fatalf("expected export-not-found error, got %v", err)
		}
	})

	t.Run("export listing", func(t *testing.T) {
		exports := c.Exports()
		if len(exports) != 2 || exports[0] != "Cart" || exports[1] != "Pay" {
			t.Fatalf("unexpected exports %v", exports)
		}
	})
}

func TestEmptyContainer(t *testing.T) {
	c := NewBuilder("shell").Build()

	if len(c.Exports()) != 0 {
		t.Fatal("expected no exports")
	}
	_, err := c.GetExport(context.Background(), "Anything")
	if !federation.IsExportNotFound(err) {
		t.Fatalf("expected export-not-found error, got %v", err)
	}
}

func TestContainerProvideShared(t *testing.T) {
	instance := map[string]string{"kind": "ui-kit"}

	c := NewBuilder("shell").
		DeclareShared(federation.SharedRequirement{Name: "ui-kit", Version: "2.1.0", CanProvide: true}).
		SharedProvider("ui-kit", func(ctx context.Context) (any, error) {
			return instance, nil
		}).
		Build()

	t.Run("declared requirements", func(t *testing.T) {
		reqs := c.DeclaredShared()
		if len(reqs) != 1 || reqs[0].Name != "ui-kit" || !reqs[0].CanProvide {
			t.Fatalf("unexpected requirements %v", reqs)
		}
	})

	t.Run("provide", func(t *testing.T) {
		got, err := c.ProvideShared(context.Background(), "ui-kit")
		if err != nil {
			t.Fatalf("provide failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected an instance")
		}
	})

	t.Run("missing factory", func(t *testing.T) {
		_, err := c.ProvideShared(context.Background(), "state")
		if !federation.IsExecution(err) {
			t.Fatalf("expected execution error, got %v", err)
		}
	})
}
