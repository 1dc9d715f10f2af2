// Package discovery supplements the static redis_servers list (spec.md
// §6) with Redis endpoints discovered from Kubernetes pod labels
// (SPEC_FULL.md §4.11). It is adapted from the teacher's
// discoverAndQueryPeers (pkg/orchestrator/orchestrator.go), redirected from
// querying peer orchestrators' HTTP state endpoints to simply listing pods
// and deriving host:port Redis endpoints from their IPs: this coordinator
// has no peer orchestrator to query, it probes Redis itself.
package discovery

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// PodLister is the subset of kubernetes.Interface discovery needs, so
// tests can supply a fake clientset without pulling in a real cluster.
type PodLister interface {
	ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error)
}

// ClientsetLister adapts a real k8s.io/client-go clientset to PodLister.
type ClientsetLister struct {
	Clientset kubernetes.Interface
}

func (l ClientsetLister) ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	list, err := l.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Discoverer lists Redis endpoints by pod label selector.
type Discoverer struct {
	lister        PodLister
	namespace     string
	labelSelector string
	redisPort     int
}

// New creates a Discoverer. redisPort is appended to each pod's IP to form
// a host:port endpoint, since pods in the same label group all run the
// same Redis port.
func New(lister PodLister, namespace, labelSelector string, redisPort int) *Discoverer {
	return &Discoverer{lister: lister, namespace: namespace, labelSelector: labelSelector, redisPort: redisPort}
}

// Discover returns host:port endpoints for every running, IP-assigned pod
// matching the configured label selector. Pods that are not yet Running or
// have no assigned IP are skipped rather than erroring, mirroring the
// teacher's own skip-and-continue treatment of not-yet-ready peers.
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	pods, err := d.lister.ListPods(ctx, d.namespace, d.labelSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	endpoints := make([]string, 0, len(pods))
	for _, pod := range pods {
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}
		if pod.Status.PodIP == "" {
			continue
		}
		endpoints = append(endpoints, fmt.Sprintf("%s:%d", pod.Status.PodIP, d.redisPort))
	}
	return endpoints, nil
}

// Merge combines the static configured endpoint list with discovered ones,
// de-duplicating while preserving the static list's order first so
// deterministic-ordering guarantees elsewhere (redispool.Prober) are not
// disturbed by which endpoints Kubernetes happens to list first.
func Merge(static, discovered []string) []string {
	seen := make(map[string]struct{}, len(static)+len(discovered))
	out := make([]string, 0, len(static)+len(discovered))
	for _, addr := range static {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, addr := range discovered {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
