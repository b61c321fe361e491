package cachestore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storydub/internal/cachestore"
)

func openStore(t *testing.T) *cachestore.Store {
	t.Helper()
	store, err := cachestore.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestFingerprintIsLengthPrefixed(t *testing.T) {
	if cachestore.Fingerprint("ab", "c") == cachestore.Fingerprint("a", "bc") {
		t.Fatal("expected distinct fingerprints for shifted parts")
	}
	if cachestore.Fingerprint("x", "y") != cachestore.Fingerprint("x", "y") {
		t.Fatal("expected stable fingerprint")
	}
}

func TestKeyStringIncludesLanguageOnlyWhenSet(t *testing.T) {
	plain := cachestore.Key{Stage: "transcribe", Fingerprint: "abcd"}
	if got := plain.String(); got != "transcribe/abcd" {
		t.Fatalf("unexpected key %q", got)
	}
	scoped := cachestore.Key{Stage: "translate", Fingerprint: "abcd", Language: "hi-IN"}
	if got := scoped.String(); got != "translate/abcd/hi-IN" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestPutThenGet(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	key := cachestore.Key{Stage: "translate", Fingerprint: cachestore.Fingerprint("hello"), Language: "ta-IN"}

	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	src := writeSource(t, "out.txt", "vanakkam")
	stored, err := store.Put(ctx, key, src, map[string]string{"chars": "8"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasSuffix(stored.Path, "-ta-IN.txt") {
		t.Fatalf("expected language-scoped blob name, got %s", stored.Path)
	}

	got, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.MetaValue("chars") != "8" || got.SizeBytes != int64(len("vanakkam")) {
		t.Fatalf("unexpected artifact %+v", got)
	}
	data, err := os.ReadFile(got.Path)
	if err != nil || string(data) != "vanakkam" {
		t.Fatalf("unexpected blob content %q (%v)", data, err)
	}

	other := key
	other.Language = "hi-IN"
	if _, ok, _ := store.Get(ctx, other); ok {
		t.Fatal("language must be part of the key")
	}
}

func TestGetDropsEntriesWithMissingBlob(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	key := cachestore.Key{Stage: "segment", Fingerprint: cachestore.Fingerprint("a")}
	stored, err := store.Put(ctx, key, writeSource(t, "c.wav", "pcm"), nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.Remove(stored.Path); err != nil {
		t.Fatalf("remove blob: %v", err)
	}
	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss after blob removal, got ok=%v err=%v", ok, err)
	}
	entries, err := store.List(ctx, "")
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected stale row dropped, got %d (%v)", len(entries), err)
	}
}

func TestResolveCoalescesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	key := cachestore.Key{Stage: "transcribe", Fingerprint: cachestore.Fingerprint("chunk")}
	src := writeSource(t, "t.txt", "transcript")

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (string, map[string]string, error) {
		calls.Add(1)
		<-release
		return src, nil, nil
	}

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		paths    = map[string]int{}
		computed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art, reused, err := store.Resolve(ctx, key, compute)
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			mu.Lock()
			paths[art.Path]++
			if !reused {
				computed++
			}
			mu.Unlock()
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one computation, got %d", calls.Load())
	}
	if computed != 1 {
		t.Fatalf("expected exactly one non-reused result, got %d", computed)
	}
	if len(paths) != 1 {
		t.Fatalf("expected all callers to share one artifact, got %v", paths)
	}
}

func TestResolvePropagatesErrorsWithoutCaching(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	key := cachestore.Key{Stage: "images", Fingerprint: cachestore.Fingerprint("prompt")}
	boom := errors.New("provider down")

	_, _, err := store.Resolve(ctx, key, func(context.Context) (string, map[string]string, error) {
		return "", nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	src := writeSource(t, "img.jpg", "jpeg")
	art, reused, err := store.Resolve(ctx, key, func(context.Context) (string, map[string]string, error) {
		return src, map[string]string{"prompt": "p"}, nil
	})
	if err != nil || reused {
		t.Fatalf("expected fresh computation, got reused=%v err=%v", reused, err)
	}
	again, reused, err := store.Resolve(ctx, key, func(context.Context) (string, map[string]string, error) {
		t.Fatal("compute must not run on a hit")
		return "", nil, nil
	})
	if err != nil || !reused || again.Path != art.Path {
		t.Fatalf("expected cached hit, got reused=%v err=%v", reused, err)
	}
}

func TestResolveFollowerRecomputesAfterLeaderCancellation(t *testing.T) {
	store := openStore(t)
	key := cachestore.Key{Stage: "narrate", Fingerprint: cachestore.Fingerprint("n"), Language: "hi-IN"}
	src := writeSource(t, "n.wav", "audio")

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	started := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, _, err := store.Resolve(leaderCtx, key, func(ctx context.Context) (string, map[string]string, error) {
			close(started)
			<-ctx.Done()
			return "", nil, ctx.Err()
		})
		leaderDone <- err
	}()
	<-started

	var followerCalls atomic.Int32
	followerDone := make(chan error, 1)
	var followerArt cachestore.Artifact
	go func() {
		art, _, err := store.Resolve(context.Background(), key, func(context.Context) (string, map[string]string, error) {
			followerCalls.Add(1)
			return src, nil, nil
		})
		followerArt = art
		followerDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	if err := <-leaderDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected leader cancellation, got %v", err)
	}
	if err := <-followerDone; err != nil {
		t.Fatalf("follower: %v", err)
	}
	if followerCalls.Load() != 1 || followerArt.Path == "" {
		t.Fatalf("expected follower to compute once, got %d", followerCalls.Load())
	}
}

func TestStatsAndPrune(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	for i, stage := range []string{"segment", "segment", "images"} {
		key := cachestore.Key{Stage: stage, Fingerprint: cachestore.Fingerprint(stage, string(rune('a'+i)))}
		if _, err := store.Put(ctx, key, writeSource(t, "f.bin", "12345"), nil); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 || stats[0].Stage != "images" || stats[1].Entries != 2 || stats[1].Bytes != 10 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if res, err := store.Prune(ctx, time.Hour); err != nil || res.Entries != 0 {
		t.Fatalf("expected nothing pruned, got %+v (%v)", res, err)
	}
	res, err := store.Prune(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Entries != 3 || res.Bytes != 15 {
		t.Fatalf("unexpected prune result %+v", res)
	}
	entries, _ := store.List(ctx, "")
	if len(entries) != 0 {
		t.Fatalf("expected empty cache after prune, got %d", len(entries))
	}
}
