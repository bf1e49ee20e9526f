// Package adminhttp exposes partition consumer state and admin actions over
// HTTP, adapted from kafka-pixy's server/httpsrv package to the much
// narrower surface SPEC_FULL.md calls for: a read-only partition listing and
// an external trigger_commit.
package adminhttp

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/mailgun/log"
	"github.com/mailgun/manners"
	"github.com/pkg/errors"

	"github.com/progressions/gruntle/consumer"
	"github.com/progressions/gruntle/internal/actor"
)

const (
	networkTCP  = "tcp"
	networkUnix = "unix"

	hdrContentType = "Content-Type"

	prmTopic     = "topic"
	prmPartition = "partition"
)

var EmptyResponse = map[string]interface{}{}

// Registry is the subset of a partition consumer pool's bookkeeping this
// package needs: enough to list every live consumer and look one up by
// (topic, partition) to route a commit request to it.
type Registry interface {
	Partitions() []*consumer.PartitionConsumer
	Lookup(topic string, partition int32) (*consumer.PartitionConsumer, bool)
}

// T is the admin HTTP server, mirroring the teacher's httpsrv.T: a
// gorilla/mux router served by a mailgun/manners graceful server so
// in-flight requests survive a Stop call.
type T struct {
	actorID    *actor.ID
	addr       string
	listener   net.Listener
	httpServer *manners.GracefulServer
	registry   Registry
	wg         sync.WaitGroup
	errorCh    chan error
}

// New creates an HTTP server instance that will serve partition listings and
// commit requests at the specified network address, exactly as the
// teacher's New constructs a listener before wiring a router onto it.
func New(addr string, registry Registry) (*T, error) {
	network := networkUnix
	if strings.Contains(addr, ":") {
		network = networkTCP
	}
	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create listener")
	}
	if network == networkUnix {
		if err := os.Chmod(addr, 0777); err != nil {
			return nil, errors.Wrap(err, "failed to change socket permissions")
		}
	}

	router := mux.NewRouter()
	httpServer := manners.NewWithServer(&http.Server{Handler: router})
	hs := &T{
		actorID:    actor.RootID.NewChild(fmt.Sprintf("http://%s", addr)),
		addr:       addr,
		listener:   manners.NewListener(listener),
		httpServer: httpServer,
		registry:   registry,
		errorCh:    make(chan error, 1),
	}

	router.HandleFunc("/partitions", hs.handleListPartitions).Methods("GET")
	router.HandleFunc(fmt.Sprintf("/partitions/{%s}/{%s}/commit", prmTopic, prmPartition), hs.handleTriggerCommit).Methods("POST")
	router.HandleFunc("/_ping", hs.handlePing).Methods("GET")
	return hs, nil
}

// Start triggers asynchronous HTTP server start. If it fails the error is
// sent down ErrorCh.
func (s *T) Start() {
	actor.Spawn(s.actorID, &s.wg, func() {
		if err := s.httpServer.Serve(s.listener); err != nil {
			s.errorCh <- errors.Wrap(err, "admin HTTP server failed")
		}
	})
}

// ErrorCh returns a channel the HTTP server writes to if it stops with an
// error. It is closed once the server has fully stopped.
func (s *T) ErrorCh() <-chan error {
	return s.errorCh
}

// Stop gracefully stops the admin HTTP server: no more new connections are
// accepted, then it blocks until pending requests complete.
func (s *T) Stop() {
	s.httpServer.Close()
	s.wg.Wait()
	close(s.errorCh)
}

// partitionView is the wire shape of GET /partitions, reflecting the
// Offset Tracker's three offsets and outstanding demand directly
// (spec.md §3, §6 operability).
type partitionView struct {
	Group           string `json:"group"`
	Topic           string `json:"topic"`
	Partition       int32  `json:"partition"`
	CurrentOffset   int64  `json:"current_offset"`
	AckedOffset     int64  `json:"acked_offset"`
	CommittedOffset int64  `json:"committed_offset"`
	Demand          int    `json:"demand"`
}

func (s *T) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	pcs := s.registry.Partitions()
	views := make([]partitionView, len(pcs))
	for i, pc := range pcs {
		snap := pc.Snapshot()
		views[i] = partitionView{
			Group:           snap.Group,
			Topic:           snap.Topic,
			Partition:       snap.Partition,
			CurrentOffset:   snap.CurrentOffset,
			AckedOffset:     snap.AckedOffset,
			CommittedOffset: snap.CommittedOffset,
			Demand:          snap.Demand,
		}
	}
	respondWithJSON(w, http.StatusOK, views)
}

// commitRequest is the body of POST /partitions/{topic}/{partition}/commit,
// giving external callers access to spec.md §4.F's trigger_commit operation.
type commitRequest struct {
	Strategy string `json:"strategy"`
	Offset   int64  `json:"offset"`
}

func (s *T) handleTriggerCommit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	topic := mux.Vars(r)[prmTopic]
	partitionStr := mux.Vars(r)[prmPartition]
	partition, err := strconv.ParseInt(partitionStr, 10, 32)
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorHTTPResponse{fmt.Sprintf("invalid partition: %s", partitionStr)})
		return
	}

	pc, ok := s.registry.Lookup(topic, int32(partition))
	if !ok {
		respondWithJSON(w, http.StatusNotFound, errorHTTPResponse{"unknown topic/partition"})
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorHTTPResponse{fmt.Sprintf("failed to parse request: %s", err)})
		return
	}

	strategy, err := parseCommitStrategy(req.Strategy)
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorHTTPResponse{err.Error()})
		return
	}

	pc.TriggerCommit(strategy, req.Offset)
	respondWithJSON(w, http.StatusOK, EmptyResponse)
}

func parseCommitStrategy(s string) (consumer.CommitStrategy, error) {
	switch s {
	case "", "none":
		return consumer.CommitNone, nil
	case "sync":
		return consumer.CommitSync, nil
	case "async":
		return consumer.CommitAsync, nil
	default:
		return "", errors.Errorf("unrecognized commit strategy: %q", s)
	}
}

type pingResponse struct {
	Status    string `json:"status"`
	Partition int    `json:"partitions_registered"`
}

func (s *T) handlePing(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	respondWithJSON(w, http.StatusOK, pingResponse{Status: "ok", Partition: len(s.registry.Partitions())})
}

type errorHTTPResponse struct {
	Error string `json:"error"`
}

// respondWithJSON writes body to w as an indented JSON document, logging and
// falling back to a 500 if marshaling fails.
func respondWithJSON(w http.ResponseWriter, status int, body interface{}) {
	payload, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		log.Errorf("adminhttp: failed to marshal response body=%v: %+v", body, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Add(hdrContentType, "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		log.Errorf("adminhttp: failed to write response status=%d: %+v", status, err)
	}
}
