package syncproto

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/issue"
	"github.com/smit-go/smit/internal/project"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func mustInitProject(t *testing.T, root, name string) *project.Project {
	t.Helper()
	p, err := project.Init(root, name)
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	lines := project.ParseConfigUpdate([]byte("addProperty status select open closed\n"))
	if err := p.ModifyConfig(lines, "alice"); err != nil {
		t.Fatalf("configure project: %v", err)
	}
	return p
}

// --- mergeEntry ---

func TestMergeEntryNoOpWhenLocalMatchesRemoteHead(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	if err := remote.AddEntry(root); err != nil {
		t.Fatal(err)
	}

	local := entry.New(entry.Properties{"status": {"open"}}, "bob", root.ID, fixedNow())
	m := mergeEntry(local, remote, entry.Properties{}, MergeKeepLocal, nil, fixedNow())
	if m != nil {
		t.Fatalf("expected nil merge entry for a no-op property, got %+v", m)
	}
}

func TestMergeEntryKeepsUnconflictedProperty(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	remote.AddEntry(root)

	// remote never touched "priority" after the common parent.
	local := entry.New(entry.Properties{"priority": {"high"}}, "bob", root.ID, fixedNow())
	m := mergeEntry(local, remote, entry.Properties{}, MergeKeepLocal, nil, fixedNow())
	if m == nil {
		t.Fatal("expected a merge entry")
	}
	if got := m.Properties["priority"]; len(got) != 1 || got[0] != "high" {
		t.Fatalf("priority not kept: %v", got)
	}
	if m.Parent != remote.Head() {
		t.Fatalf("merge entry parent = %s, want remote head %s", m.Parent, remote.Head())
	}
}

func TestMergeEntryKeepLocalOnConflict(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	remote.AddEntry(root)
	conflicting := entry.Properties{"status": {"closed"}}

	local := entry.New(entry.Properties{"status": {"in-progress"}}, "bob", root.ID, fixedNow())
	m := mergeEntry(local, remote, conflicting, MergeKeepLocal, nil, fixedNow())
	if m == nil || m.Properties["status"][0] != "in-progress" {
		t.Fatalf("MergeKeepLocal should keep the local value, got %+v", m)
	}
}

func TestMergeEntryDropLocalOnConflict(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	remote.AddEntry(root)
	conflicting := entry.Properties{"status": {"closed"}}

	local := entry.New(entry.Properties{"status": {"in-progress"}, "+message": {"note"}}, "bob", root.ID, fixedNow())
	m := mergeEntry(local, remote, conflicting, MergeDropLocal, nil, fixedNow())
	if m != nil {
		t.Fatalf("MergeDropLocal should drop every conflicting property and the message, got %+v", m)
	}
}

func TestMergeEntryInteractiveAsksResolver(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	remote.AddEntry(root)
	conflicting := entry.Properties{"status": {"closed"}}

	local := entry.New(entry.Properties{"status": {"in-progress"}}, "bob", root.ID, fixedNow())
	r := &fakeResolver{keepProperty: true}
	m := mergeEntry(local, remote, conflicting, MergeInteractive, r, fixedNow())
	if m == nil || m.Properties["status"][0] != "in-progress" {
		t.Fatalf("resolver said keep, expected local value, got %+v", m)
	}
	if !r.calledProperty {
		t.Fatal("resolver was never consulted")
	}
}

func TestMergeEntryFileAlwaysKept(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	remote.AddEntry(root)
	conflicting := entry.Properties{"status": {"closed"}}

	local := entry.New(entry.Properties{"status": {"in-progress"}, entry.KeyFile: {"deadbeef"}}, "bob", root.ID, fixedNow())
	m := mergeEntry(local, remote, conflicting, MergeDropLocal, nil, fixedNow())
	if m == nil {
		t.Fatal("expected a merge entry: +file must survive even when every other property drops")
	}
	if got := m.Properties[entry.KeyFile]; len(got) != 1 || got[0] != "deadbeef" {
		t.Fatalf("+file not preserved: %v", got)
	}
	if _, ok := m.Properties["status"]; ok {
		t.Fatal("status should have been dropped under MergeDropLocal")
	}
}

type fakeResolver struct {
	keepProperty   bool
	keepMessage    bool
	calledProperty bool
	calledMessage  bool
}

func (r *fakeResolver) ResolveProperty(issueID, name string, local, remote []string) bool {
	r.calledProperty = true
	return r.keepProperty
}

func (r *fakeResolver) ResolveMessage(issueID, msg string) bool {
	r.calledMessage = true
	return r.keepMessage
}

// --- remoteConflictingProperties ---

func TestRemoteConflictingPropertiesStartsAfterCommonParent(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	remote.AddEntry(root)
	second := entry.New(entry.Properties{"priority": {"high"}}, "alice", root.ID, fixedNow())
	remote.AddEntry(second)

	part := remoteConflictingProperties(remote, root.ID)
	if _, ok := part["status"]; ok {
		t.Fatal("status was set at or before the common parent, should not appear")
	}
	if got := part["priority"]; len(got) != 1 || got[0] != "high" {
		t.Fatalf("priority should be in the conflicting part, got %v", got)
	}
}

func TestRemoteConflictingPropertiesFromRoot(t *testing.T) {
	remote := issue.New("1")
	root := entry.New(entry.Properties{"status": {"open"}}, "alice", entry.ParentNull, fixedNow())
	remote.AddEntry(root)

	part := remoteConflictingProperties(remote, entry.ParentNull)
	if got := part["status"]; len(got) != 1 || got[0] != "open" {
		t.Fatalf("expected root entry included when commonParent is the null parent, got %v", got)
	}
}

// --- Client against a real httptest server ---

func TestClientGetHeadPostBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/hello":
			fmt.Fprint(w, "world")
		case r.Method == http.MethodHead && r.URL.Path == "/exists":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead && r.URL.Path == "/missing":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Session{})
	ctx := context.Background()

	data, status, err := c.Get(ctx, "/hello")
	if err != nil || status != 200 || string(data) != "world" {
		t.Fatalf("Get: data=%q status=%d err=%v", data, status, err)
	}

	ok, err := c.Head(ctx, "/exists")
	if err != nil || !ok {
		t.Fatalf("Head /exists: ok=%v err=%v", ok, err)
	}
	ok, err = c.Head(ctx, "/missing")
	if err != nil || ok {
		t.Fatalf("Head /missing: ok=%v err=%v", ok, err)
	}

	resp, status, err := c.PostBytes(ctx, "/echo", []byte("ping"))
	if err != nil || status != 200 || string(resp) != "ping" {
		t.Fatalf("PostBytes: resp=%q status=%d err=%v", resp, status, err)
	}
}

// --- Pull / Push end to end against a fake remote server backed by a
// real remote project on disk ---

// remoteServer wires spec §6's wire endpoints directly onto a
// project.Project, exercising the same server-side ingestion path
// (Project.PushEntry) that a real smit server would use.
func remoteServer(t *testing.T, remote *project.Project) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	prefix := "/" + remote.Name()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, remote.Name())
	})

	mux.HandleFunc(prefix+"/refs/issues/", func(w http.ResponseWriter, r *http.Request) {
		for _, iss := range remote.AllIssues() {
			fmt.Fprintln(w, iss.ID)
		}
	})

	mux.HandleFunc(prefix+"/refs/project", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc(prefix+"/refs/views", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	mux.HandleFunc(prefix+"/issues/", func(w http.ResponseWriter, r *http.Request) {
		issueID := strings.TrimPrefix(r.URL.Path, prefix+"/issues/")
		parts := strings.SplitN(issueID, "/", 2)

		if len(parts) == 1 {
			iss, ok := remote.Get(parts[0])
			if !ok {
				http.NotFound(w, r)
				return
			}
			for _, id := range iss.SortedEntryIDs() {
				fmt.Fprintln(w, id)
			}
			return
		}

		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		actual, err := remote.PushEntry(parts[0], parts[1], "bob", body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		fmt.Fprintf(w, "issue: %s\n", actual)
	})

	mux.HandleFunc(prefix+"/objects/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"/objects/")
		oid := strings.Replace(rest, "/", "", 1)
		data, err := remote.Store().Load(oid)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})

	return httptest.NewServer(mux)
}

func TestPullClonesFreshIssue(t *testing.T) {
	remoteRoot := t.TempDir()
	remote := mustInitProject(t, remoteRoot, "demo")
	issueID, _, err := remote.AddEntry(entry.Properties{"status": {"open"}, "+message": {"hello"}}, "", "alice", fixedNow())
	if err != nil {
		t.Fatalf("seed remote issue: %v", err)
	}

	srv := remoteServer(t, remote)
	defer srv.Close()

	localRoot := t.TempDir()
	local := mustInitProject(t, localRoot, "demo")

	c := NewClient(srv.URL, Session{})
	if err := Pull(context.Background(), c, local, PullOptions{MergeStrategy: MergeKeepLocal}); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	iss, ok := local.Get(issueID)
	if !ok {
		t.Fatalf("issue %s not pulled into local project", issueID)
	}
	if iss.Head() == "" || iss.Head() != remoteMustHead(t, remote, issueID) {
		t.Fatalf("local head %s does not match remote head", iss.Head())
	}
	if iss.EffectiveMessage(iss.Head()) != "hello" {
		t.Fatalf("message not carried over: %q", iss.EffectiveMessage(iss.Head()))
	}
}

func remoteMustHead(t *testing.T, p *project.Project, issueID string) string {
	t.Helper()
	iss, ok := p.Get(issueID)
	if !ok {
		t.Fatalf("remote missing issue %s", issueID)
	}
	return iss.Head()
}

func TestPullFastForwardsLongerRemote(t *testing.T) {
	remoteRoot := t.TempDir()
	remote := mustInitProject(t, remoteRoot, "demo")
	issueID, _, err := remote.AddEntry(entry.Properties{"status": {"open"}}, "", "alice", fixedNow())
	if err != nil {
		t.Fatal(err)
	}

	srv := remoteServer(t, remote)
	defer srv.Close()

	localRoot := t.TempDir()
	local := mustInitProject(t, localRoot, "demo")
	c := NewClient(srv.URL, Session{})
	if err := Pull(context.Background(), c, local, PullOptions{MergeStrategy: MergeKeepLocal}); err != nil {
		t.Fatalf("initial pull: %v", err)
	}

	// remote advances after the initial clone
	if _, _, err := remote.AddEntry(entry.Properties{"status": {"closed"}}, issueID, "alice", fixedNow()); err != nil {
		t.Fatal(err)
	}

	if err := Pull(context.Background(), c, local, PullOptions{MergeStrategy: MergeKeepLocal}); err != nil {
		t.Fatalf("second pull: %v", err)
	}

	iss, ok := local.Get(issueID)
	if !ok {
		t.Fatal("issue missing after fast-forward pull")
	}
	if iss.Properties["status"][0] != "closed" {
		t.Fatalf("fast-forward did not adopt remote's new entry: %v", iss.Properties["status"])
	}
}

func TestPushUploadsNewLocalIssue(t *testing.T) {
	remoteRoot := t.TempDir()
	remote := mustInitProject(t, remoteRoot, "demo")
	srv := remoteServer(t, remote)
	defer srv.Close()

	localRoot := t.TempDir()
	local := mustInitProject(t, localRoot, "demo")
	issueID, _, err := local.AddEntry(entry.Properties{"status": {"open"}}, "", "bob", fixedNow())
	if err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL, Session{})
	if err := Push(context.Background(), c, local); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if remote.NumIssues() != 1 {
		t.Fatalf("expected exactly one issue pushed to the remote, got %d", remote.NumIssues())
	}
	pushed := remote.AllIssues()[0]
	if pushed.Properties["status"][0] != "open" {
		t.Fatalf("pushed issue has wrong properties: %v", pushed.Properties)
	}
	if issueID == "" {
		t.Fatal("local issue was never created")
	}
}

func TestDirCredentialStoreRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "smit-creds")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store := DirCredentialStore{Dir: dir}
	want := Session{RootURL: "http://example.invalid", Cookie: "smit-sessid-x=abc"}
	if err := store.Store(want); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
