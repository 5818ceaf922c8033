package cli_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/stretchr/testify/suite"
)

type ClientSuite struct {
	suite.Suite
	Server   *httptest.Server
	Requests []*http.Request
	Bodies   []map[string]interface{}
	Client   *cli.Client
}

func TestClient(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.Requests = nil
	s.Bodies = nil
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Requests = append(s.Requests, r)
		body := map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.Bodies = append(s.Bodies, body)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/things" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"b"},{"id":"a"}]`))
		case r.URL.Path == "/things/a" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"a"}`))
		case r.URL.Path == "/things" && r.Method == http.MethodPost:
			w.Header().Set(cli.JobHeader, "job-1")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"username":"alice"}`))
		case r.URL.Path == "/things/a" && r.Method == http.MethodDelete:
			_, _ = w.Write([]byte(`{"id":"a"}`))
		case r.URL.Path == "/things/gone" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/garbage":
			_, _ = w.Write([]byte(`{`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found","code":404}`))
		}
	}))
	s.Client = cli.New(s.Server.URL+"/", "sekrit")
}

func (s *ClientSuite) TearDownTest() {
	s.Server.Close()
}

func (s *ClientSuite) TestURLString() {
	c := cli.New("http://localhost:18000/", "")
	s.Equal("http://localhost:18000/instances", c.URLString("instances"))
	s.Equal("http://localhost:18000/instances/x", c.URLString("/instances/x"))
}

func (s *ClientSuite) TestGetMany() {
	things, err := s.Client.GetMany("things", "things")
	s.NoError(err)
	s.Len(things, 2)
	s.Equal("Token sekrit", s.Requests[0].Header.Get("Authorization"))
}

func (s *ClientSuite) TestGet() {
	thing, err := s.Client.Get("thing", "things/a")
	s.NoError(err)
	s.Equal("a", thing.ID())

	_, err = s.Client.Get("thing", "things/b")
	s.EqualError(err, "thing: 404 not found")
	rerr, ok := err.(*cli.ResponseError)
	s.Require().True(ok)
	s.Equal(http.StatusNotFound, rerr.Code)

	_, err = s.Client.Get("thing", "garbage")
	s.Error(err)
}

func (s *ClientSuite) TestPost() {
	thing, job, err := s.Client.Post("thing", "things", map[string]string{"username": "alice"}, http.StatusAccepted)
	s.NoError(err)
	s.Equal("alice", thing.ID())
	s.Equal("job-1", job)
	s.Equal("alice", s.Bodies[0]["username"])
	s.Equal("application/json", s.Requests[0].Header.Get("Content-Type"))

	_, _, err = s.Client.Post("thing", "things", nil, http.StatusCreated)
	s.Error(err)
}

func (s *ClientSuite) TestDel() {
	thing, job, err := s.Client.Del("thing", "things/a", http.StatusOK)
	s.NoError(err)
	s.Equal("a", thing.ID())
	s.Empty(job)
	s.Equal(http.MethodDelete, s.Requests[0].Method)

	thing, _, err = s.Client.Del("thing", "things/gone", http.StatusNoContent)
	s.NoError(err, "no content has no body to parse")
	s.Empty(thing)
}

func (s *ClientSuite) TestNoToken() {
	c := cli.New(s.Server.URL, "")
	_, err := c.Get("thing", "things/a")
	s.NoError(err)
	s.Empty(s.Requests[0].Header.Get("Authorization"))
}
