package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"
)

type request struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]interface{}
}

type CLISuite struct {
	suite.Suite
	Server   *httptest.Server
	mu       sync.Mutex
	Requests []request
	Out      *bytes.Buffer
	ID       string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.Requests = nil
	s.Out = &bytes.Buffer{}
	s.ID = uuid.New()
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
}

func (s *CLISuite) TearDownTest() {
	s.Server.Close()
}

// serve answers like atmosphered for the paths the commands use
func (s *CLISuite) serve(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.Requests = append(s.Requests, request{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization"), body})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	write := func(code int, v interface{}) {
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	one := map[string]interface{}{"id": s.ID}

	switch {
	case r.Method == "GET" && (r.URL.Path == "/image_bookmarks" || r.URL.Path == "/instances" || r.URL.Path == "/providers"):
		write(http.StatusOK, []map[string]interface{}{{"id": "b"}, {"id": "a"}})
	case r.Method == "POST" && (r.URL.Path == "/image_bookmarks" || r.URL.Path == "/instances" || r.URL.Path == "/providers"):
		write(http.StatusCreated, one)
	case r.Method == "POST" && strings.HasSuffix(r.URL.Path, "/deploy"):
		w.Header().Set("X-Job-ID", "job-"+s.ID)
		write(http.StatusAccepted, one)
	case r.Method == "POST" && r.URL.Path == "/accounts":
		w.Header().Set("X-Job-ID", "job-create")
		write(http.StatusAccepted, body)
	case r.Method == "DELETE" && strings.HasPrefix(r.URL.Path, "/accounts/"):
		w.Header().Set("X-Job-ID", "job-delete")
		write(http.StatusAccepted, map[string]string{"username": "alice"})
	case r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/jobs/"):
		write(http.StatusOK, map[string]string{"id": s.ID, "status": "error", "error": "boom"})
	case r.Method == "GET" && r.URL.Path == "/users":
		write(http.StatusOK, []map[string]interface{}{{"username": "bob"}, {"username": "alice"}})
	case r.Method == "POST" && r.URL.Path == "/users":
		write(http.StatusCreated, body)
	case r.Method == "POST" && r.URL.Path == "/tokens":
		if body["user"] == "nobody" {
			write(http.StatusBadRequest, map[string]interface{}{"message": "unknown user", "code": 400})
			return
		}
		write(http.StatusCreated, map[string]interface{}{"key": "key-" + body["user"].(string), "user": body["user"]})
	case r.Method == "POST" && r.URL.Path == "/identities":
		write(http.StatusCreated, one)
	case r.Method == "DELETE" && r.URL.Path == "/image_bookmarks/"+s.ID:
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/image_bookmarks/"+s.ID || r.URL.Path == "/instances/"+s.ID:
		write(http.StatusOK, one)
	default:
		write(http.StatusNotFound, map[string]interface{}{"message": "not found", "code": 404})
	}
}

func (s *CLISuite) run(args ...string) error {
	a := &app{
		server: s.Server.URL,
		token:  "sekrit",
		out:    s.Out,
		in:     strings.NewReader(s.ID + "\n"),
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.Execute()
}

func (s *CLISuite) lines() []string {
	return strings.Split(strings.TrimSpace(s.Out.String()), "\n")
}

func (s *CLISuite) TestBookmarks() {
	s.NoError(s.run("bookmark", "list"))
	s.Equal([]string{"a", "b"}, s.lines())
	s.Equal("Token sekrit", s.Requests[0].Auth)

	s.Out.Reset()
	s.NoError(s.run("bookmark", "list", s.ID))
	s.Equal([]string{s.ID}, s.lines())

	s.Out.Reset()
	s.NoError(s.run("bookmark", "create", s.ID))
	s.Equal(s.ID, s.Requests[len(s.Requests)-1].Body["application"])

	s.Out.Reset()
	s.NoError(s.run("bookmark", "delete", "-"))
	s.Equal([]string{s.ID}, s.lines())
	last := s.Requests[len(s.Requests)-1]
	s.Equal("DELETE", last.Method)
	s.Equal("/image_bookmarks/"+s.ID, last.Path)

	s.Error(s.run("bookmark", "create", "not-a-uuid"))
	s.Error(s.run("bookmark", "list", uuid.New()))
}

func (s *CLISuite) TestInstances() {
	s.NoError(s.run("instance", "list", "--all"))
	s.Equal("all=true", s.Requests[0].Query)

	s.Out.Reset()
	s.NoError(s.run("-j", "instance", "create", `{"name":"vm","provider_alias":"x"}`))
	s.Equal("vm", s.Requests[1].Body["name"])
	s.JSONEq(`{"id":"`+s.ID+`"}`, s.Out.String())

	s.Error(s.run("instance", "create", "{"))
}

func (s *CLISuite) TestDeploy() {
	s.NoError(s.run("instance", "deploy", s.ID))
	s.Equal([]string{"job-" + s.ID}, s.lines())
	s.Equal("/instances/"+s.ID+"/deploy", s.Requests[0].Path)

	s.Error(s.run("instance", "action", "explode", s.ID))
	s.Len(s.Requests, 1, "unknown actions should not reach the server")

	err := s.run("instance", "action", "ready", s.ID)
	s.EqualError(err, "ready: 404 not found")
}

func (s *CLISuite) TestAccounts() {
	s.Error(s.run("account", "create", "alice"), "provider is required")

	s.NoError(s.run("account", "create", "--provider", "p1", "--max-quota", "alice"))
	s.Equal([]string{"job-create"}, s.lines())
	body := s.Requests[0].Body
	s.Equal("alice", body["username"])
	s.Equal("p1", body["provider"])
	s.Equal(true, body["max_quota"])
	s.Equal(false, body["admin_role"])

	s.Out.Reset()
	s.NoError(s.run("account", "delete", "-p", "p1", "alice"))
	s.Equal([]string{"job-delete"}, s.lines())
	s.Equal("/accounts/alice", s.Requests[1].Path)
	s.Equal("provider=p1", s.Requests[1].Query)
}

func (s *CLISuite) TestProviders() {
	s.NoError(s.run("provider", "list"))
	s.Equal([]string{"a", "b"}, s.lines())
}

func (s *CLISuite) TestJobGet() {
	s.NoError(s.run("job", "get", s.ID))
	s.Equal([]string{s.ID + " error boom"}, s.lines())
	s.Error(s.run("job", "get", "nope"))

	s.Out.Reset()
	s.NoError(s.run("job", "get", "--wait", "1m", s.ID))
	last := s.Requests[len(s.Requests)-1]
	s.Equal("/jobs/"+s.ID, last.Path)
	s.Equal("wait=1m0s", last.Query)
}

func (s *CLISuite) TestUsers() {
	s.NoError(s.run("user", "list"))
	s.Equal([]string{"alice", "bob"}, s.lines())

	s.Out.Reset()
	s.NoError(s.run("user", "create", `{"username":"carol","is_staff":true}`))
	s.Equal([]string{"carol"}, s.lines())
	last := s.Requests[len(s.Requests)-1]
	s.Equal("POST", last.Method)
	s.Equal("/users", last.Path)
	s.Equal(true, last.Body["is_staff"])

	s.Error(s.run("user", "create", "{"))
}

func (s *CLISuite) TestTokens() {
	s.NoError(s.run("token", "create", "alice", "bob"))
	s.Equal([]string{"key-alice", "key-bob"}, s.lines())
	last := s.Requests[len(s.Requests)-1]
	s.Equal("/tokens", last.Path)
	s.NotContains(last.Body, "ttl")

	s.Out.Reset()
	s.NoError(s.run("token", "create", "--ttl", "24h", "alice"))
	s.Equal("24h0m0s", s.Requests[len(s.Requests)-1].Body["ttl"])

	err := s.run("token", "create", "nobody")
	s.Require().Error(err)
	s.Contains(err.Error(), "unknown user")
}

func (s *CLISuite) TestIdentities() {
	spec := `{"username":"alice","provider":"` + s.ID + `","credentials":{"key":"alice"}}`
	s.NoError(s.run("identity", "create", spec))
	s.Equal([]string{s.ID}, s.lines())
	last := s.Requests[len(s.Requests)-1]
	s.Equal("/identities", last.Path)
	s.Empty(last.Query)
	s.Equal("alice", last.Body["username"])

	s.NoError(s.run("identity", "create", "--admin", spec))
	s.Equal("admin=true", s.Requests[len(s.Requests)-1].Query)
}
