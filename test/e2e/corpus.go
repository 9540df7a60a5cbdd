// Package e2e drives the full HTTP API against a corpus of uploaded
// documents and a set of queries with known correct answers.
package e2e

import (
	"fmt"
	"strings"
)

// CorpusDocument is one file in the end-to-end corpus. Filename is the name
// the file is uploaded under; results are asserted against it.
type CorpusDocument struct {
	Filename string
	Content  string
}

// QueryTestCase pairs a query with the filename(s) that must appear in its
// results. At least one of ExpectedFilenames must show up.
type QueryTestCase struct {
	Query             string
	ExpectedFilenames []string
	Description       string
}

// Corpus holds the documents and query test cases for the end-to-end run.
type Corpus struct {
	Documents    []CorpusDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// BuildCorpus returns a deterministic corpus. Every document carries a
// distinctive signature phrase so queries can assert the right file came
// back among many plausible near-matches.
func BuildCorpus() *Corpus {
	docs := buildDocuments()
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

func buildDocuments() []CorpusDocument {
	topics := []struct {
		slug    string
		content string
	}{
		{"postgres-vacuum", "Routine maintenance keeps table bloat in check. PostgreSQL autovacuum tuning controls when dead tuples are reclaimed."},
		{"sqlite-wal", "The write-ahead log changes how readers and writers interact. SQLite WAL journal mode lets reads proceed during a write."},
		{"redis-eviction", "Memory pressure forces the cache to choose victims. Redis eviction policy maxmemory decides which keys are dropped first."},
		{"kafka-partitions", "Ordering is only guaranteed within a partition. Kafka partition rebalancing moves ownership between consumers in a group."},
		{"etcd-raft", "The cluster needs a majority to make progress. Etcd raft leader election happens when heartbeats stop arriving."},
		{"nginx-upstream", "Traffic is spread across backend servers. Nginx upstream health checks take failing backends out of rotation."},
		{"haproxy-sticky", "Some applications need requests pinned to one server. HAProxy sticky sessions use a cookie to route repeat visitors."},
		{"dns-ttl", "Caches hold answers for as long as records allow. DNS TTL propagation delay explains why changes take hours to land everywhere."},
		{"tcp-backlog", "Connection bursts can overflow the accept queue. TCP listen backlog sizing matters for servers under sudden load."},
		{"tls-rotation", "Certificates expire on their own schedule. TLS certificate rotation should be automated long before the expiry date."},
		{"ssh-bastion", "Production hosts are not reachable directly. SSH bastion jump host configuration concentrates access through one audited machine."},
		{"docker-layers", "Each instruction adds a layer to the image. Docker layer caching makes rebuild time depend on instruction order."},
		{"k8s-probes", "The orchestrator needs to know when a pod can serve. Kubernetes readiness liveness probes gate traffic and trigger restarts."},
		{"helm-values", "One chart deploys to many environments. Helm values overrides layer environment settings over chart defaults."},
		{"terraform-state", "The state file is the source of truth for applied infrastructure. Terraform remote state locking prevents concurrent applies from colliding."},
		{"ansible-idempotent", "Running a playbook twice should change nothing the second time. Ansible idempotent tasks report ok instead of changed."},
		{"systemd-units", "Services declare their dependencies and restart behavior. Systemd unit file hardening restricts what a daemon can touch."},
		{"cron-drift", "Scheduled jobs assume the clock is right. Cron schedule timezone drift bites twice a year around daylight saving."},
		{"ntp-skew", "Distributed systems disagree about now. NTP clock skew correction slews time rather than stepping it."},
		{"zfs-scrub", "Silent corruption is found by reading everything back. ZFS scrub checksum verification walks the pool and repairs from redundancy."},
		{"raid-rebuild", "A failed disk starts a race against the next failure. RAID array rebuild window is when a second fault is fatal."},
		{"backup-restore", "A backup that was never restored is a hope, not a plan. Backup restore drill procedure proves the recovery path end to end."},
		{"wal-archiving", "Point-in-time recovery needs every log segment. WAL archiving continuous recovery replays changes up to a chosen moment."},
		{"s3-lifecycle", "Old objects should move to cheaper storage on their own. S3 lifecycle transition rules demote data to infrequent access tiers."},
		{"cdn-purge", "Stale assets linger at the edge after a deploy. CDN cache purge invalidation forces edge nodes to refetch from origin."},
		{"oauth-refresh", "Access tokens are short-lived on purpose. OAuth refresh token rotation issues a new refresh token on every use."},
		{"jwt-expiry", "A token is trusted until its clock runs out. JWT expiry claim validation rejects tokens presented after their window."},
		{"rbac-scopes", "Permissions should follow the role, not the person. RBAC permission scope design keeps service accounts narrowly granted."},
		{"audit-trail", "Regulators ask who changed what and when. Audit trail retention policy fixes how long the record is kept."},
		{"secrets-vault", "Credentials do not belong in configuration files. Vault secrets dynamic leasing hands out short-lived database passwords."},
		{"firewall-egress", "Outbound traffic deserves the same scrutiny as inbound. Firewall egress filtering rules stop exfiltration over unexpected ports."},
		{"ids-signatures", "Known attacks leave recognizable traces on the wire. Intrusion detection signature updates keep the rule set current."},
		{"grafana-alerts", "A dashboard nobody watches is wall art. Grafana alert rule thresholds page someone when a metric crosses the line."},
		{"tracing-spans", "One slow request crosses a dozen services. Distributed tracing span propagation carries the trace id across process hops."},
		{"logrotate-size", "Unbounded logs eventually fill the disk. Logrotate size based rotation caps each file and prunes old archives."},
		{"heap-profile", "Memory growth has to be caught in the act. Heap profile allocation sampling shows which call sites hold the bytes."},
		{"goroutine-leak", "Blocked workers accumulate quietly. Goroutine leak detection compares stack dumps taken minutes apart."},
		{"race-detector", "Unsynchronized access is a latent crash. Data race detector instrumentation flags conflicting reads and writes at runtime."},
		{"mutex-contention", "A hot lock serializes the whole service. Mutex contention profiling ranks locks by time spent waiting."},
		{"gc-pauses", "Collection steals time from request handling. Garbage collection pause tuning trades memory headroom for latency."},
		{"index-selectivity", "The planner skips indexes that do not narrow the search. Index selectivity cardinality estimates drive the query plan choice."},
		{"query-explain", "The database will tell you what it intends to do. Query plan explain analyze shows actual rows against estimates."},
		{"migration-rollback", "Schema changes need a way back. Migration rollback reversibility means every up script ships with a down."},
		{"blue-green-cutover", "Two identical environments take turns serving. Blue green cutover switch moves traffic in one step and back as fast."},
		{"canary-metrics", "A small slice of traffic judges the new build. Canary release error budget halts the rollout when failures spike."},
		{"feature-flag-debt", "Stale toggles accumulate into dead branches. Feature flag cleanup debt is paid by deleting flags after full rollout."},
		{"incident-timeline", "The first casualty of an outage is the sequence of events. Incident timeline reconstruction orders alerts, deploys, and actions."},
		{"postmortem-actions", "Lessons decay unless they become work items. Postmortem action item tracking assigns owners and due dates."},
	}

	out := make([]CorpusDocument, 0, len(topics))
	for _, t := range topics {
		out = append(out, CorpusDocument{
			Filename: t.slug + ".txt",
			Content:  t.content,
		})
	}
	return out
}

func buildQueryTestCases(docs []CorpusDocument) []QueryTestCase {
	// Each query is a fragment of one document's signature phrase.
	phrases := []string{
		"PostgreSQL autovacuum tuning",
		"SQLite WAL journal",
		"Redis eviction policy",
		"Kafka partition rebalancing",
		"raft leader election",
		"Nginx upstream health",
		"DNS TTL propagation",
		"TLS certificate rotation",
		"bastion jump host",
		"Docker layer caching",
		"readiness liveness probes",
		"Terraform remote state locking",
		"Systemd unit file",
		"NTP clock skew",
		"ZFS scrub checksum",
		"backup restore drill",
		"S3 lifecycle transition",
		"OAuth refresh token rotation",
		"JWT expiry claim",
		"Vault secrets dynamic leasing",
		"egress filtering",
		"Grafana alert rule",
		"tracing span propagation",
		"heap profile allocation",
		"data race detector",
		"garbage collection pause",
		"index selectivity cardinality",
		"migration rollback reversibility",
		"blue green cutover",
		"canary release error budget",
		"incident timeline reconstruction",
		"postmortem action item",
	}

	var cases []QueryTestCase
	used := make(map[string]bool)
	for _, p := range phrases {
		for _, d := range docs {
			if containsPhrase(d, p) && !used[d.Filename] {
				cases = append(cases, QueryTestCase{
					Query:             p,
					ExpectedFilenames: []string{d.Filename},
					Description:       fmt.Sprintf("query %q should return %s", p, d.Filename),
				})
				used[d.Filename] = true
				break
			}
		}
	}
	return cases
}

func containsPhrase(d CorpusDocument, phrase string) bool {
	return strings.Contains(strings.ToLower(d.Content), strings.ToLower(phrase))
}
