package ttlcache

import (
	"context"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/relstate/provider"
	"github.com/unkn0wn-root/relstate/provider/memory"
)

func TestBuildAppliesDecodeCap(t *testing.T) {
	ctx := context.Background()
	st := Storage{
		NewProvider: func(string) (pr.Provider, error) { return memory.New(), nil },
		MaxDecode:   16,
	}
	cc, err := Build[[]string](st, "follow-ids", time.Minute)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })

	if _, err := cc.Set(ctx, "u1", []string{"a", "b"}); err != nil {
		t.Fatalf("Set small: %v", err)
	}
	if v, ok, _ := cc.Get(ctx, "u1"); !ok || len(v) != 2 {
		t.Fatalf("small list: v=%v ok=%v", v, ok)
	}

	if _, err := cc.Set(ctx, "u2", []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}); err != nil {
		t.Fatalf("Set large: %v", err)
	}
	if _, ok, _ := cc.Get(ctx, "u2"); ok {
		t.Fatalf("list over the decode cap should read as a miss")
	}
}

func TestBuildRejectsUnknownCodec(t *testing.T) {
	if _, err := Build[bool](Storage{Codec: "gob"}, "follow", time.Minute); err == nil {
		t.Fatalf("expected codec error")
	}
}
