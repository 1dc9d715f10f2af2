package election

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/raft"
	"k8s.io/klog/v2"
)

// AddVoterRequest is the body of a POST /raft/add-voter request: the
// operator-driven replacement for the teacher's auto-join polling loop
// (SPEC_FULL.md §4.9).
type AddVoterRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// RaftStatus is what GET /raft/status reports.
type RaftStatus struct {
	LeaderAddr string   `json:"leader_addr"`
	LeaderID   string   `json:"leader_id"`
	State      string   `json:"state"`
	LocalID    string   `json:"local_id"`
	Peers      []string `json:"peers"`
}

// HandleRaftStatus returns the current Raft status.
func (r *RaftStrategy) HandleRaftStatus(w http.ResponseWriter, req *http.Request) {
	if r.raft == nil {
		http.Error(w, "Raft not initialized", http.StatusServiceUnavailable)
		return
	}

	leaderAddr, leaderID := r.raft.LeaderWithID()
	status := RaftStatus{
		LeaderAddr: string(leaderAddr),
		LeaderID:   string(leaderID),
		State:      r.raft.State().String(),
		LocalID:    r.localID,
		Peers:      r.peers,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// HandleAddVoter handles requests to add a new voter to the Raft cluster.
// Only the current leader accepts this call.
func (r *RaftStrategy) HandleAddVoter(w http.ResponseWriter, req *http.Request) {
	if r.raft == nil {
		http.Error(w, "Raft not initialized", http.StatusServiceUnavailable)
		return
	}

	if r.raft.State() != raft.Leader {
		leaderAddr, _ := r.raft.LeaderWithID()
		http.Error(w, fmt.Sprintf("not the leader, leader is: %s", leaderAddr), http.StatusBadRequest)
		return
	}

	var request AddVoterRequest
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if request.ID == "" || request.Address == "" {
		http.Error(w, "id and address are required", http.StatusBadRequest)
		return
	}

	if r.debug {
		klog.InfoS("Received AddVoter request", "id", request.ID, "address", request.Address)
	}

	configFuture := r.raft.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		http.Error(w, fmt.Sprintf("failed to get configuration: %v", err), http.StatusInternalServerError)
		return
	}
	for _, server := range configFuture.Configuration().Servers {
		if server.ID == raft.ServerID(request.ID) {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "already_member"})
			return
		}
	}

	future := r.raft.AddVoter(raft.ServerID(request.ID), raft.ServerAddress(request.Address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		klog.ErrorS(err, "Failed to add voter", "id", request.ID, "address", request.Address)
		http.Error(w, fmt.Sprintf("failed to add voter: %v", err), http.StatusInternalServerError)
		return
	}

	klog.InfoS("Added voter to Raft cluster", "id", request.ID, "address", request.Address)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "added"})
}
