// Package registry is the fixed, ordered catalog of metric definitions:
// for each metric its name, kind, label dimensions and the SQL statement
// that produces its value(s). The catalog is built once at startup and
// never mutated.
package registry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mailman-tools/mailman-exporter/internal/db"
)

// Namespace prefixes every emitted metric name. Monitoring rules key on
// the exact names, so entries must not change kind or labels across
// releases without a breaking-change notice.
const Namespace = "mailman"

// Def describes one metric backed by one parameterless SELECT. The
// statement must return the declared label columns in order, then a
// single numeric value column.
type Def struct {
	Name   string
	Help   string
	Kind   prometheus.ValueType
	Labels []string
	Query  string

	// Transform maps a result row to label values when raw
	// stringification is not enough (enum decodes, booleans). When nil,
	// the leading columns are stringified via LabelValue.
	Transform func(db.Row) []string
}

// These integer values are how the platform stores its enums in
// PostgreSQL. They are defined as IntEnums in the Mailman source and
// won't change without a database migration; if they do, this is where
// to look.
const (
	memberRoleMember    = 1
	memberRoleOwner     = 2
	memberRoleModerator = 3
	memberRoleNonmember = 4

	requestTypeHeldMessage    = 1
	requestTypeSubscription   = 2
	requestTypeUnsubscription = 3
)

var roleNames = map[int64]string{
	memberRoleMember:    "member",
	memberRoleOwner:     "owner",
	memberRoleModerator: "moderator",
	memberRoleNonmember: "nonmember",
}

var requestTypeNames = map[int64]string{
	requestTypeHeldMessage:    "held_message",
	requestTypeSubscription:   "subscription",
	requestTypeUnsubscription: "unsubscription",
}

// Definitions returns the metric catalog in exposition order.
func Definitions() []Def {
	return []Def{
		{
			Name:  "domains_total",
			Help:  "Number of configured mail domains",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM domain",
		},
		{
			Name:   "lists_total",
			Help:   "Number of mailing lists",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"domain"},
			Query:  "SELECT mail_host, count(*) FROM mailinglist GROUP BY 1",
		},
		{
			Name:   "members_total",
			Help:   "Number of memberships",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"list_id", "role"},
			Query:  "SELECT list_id, role, count(*) FROM member GROUP BY 1, 2",
			Transform: func(row db.Row) []string {
				return []string{LabelValue(row[0]), roleName(row[1])}
			},
		},
		{
			Name:  "users_total",
			Help:  "Total number of distinct users",
			Kind:  prometheus.GaugeValue,
			Query: `SELECT count(*) FROM "user"`,
		},
		{
			Name:   "pending_requests_total",
			Help:   "Pending moderation requests",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"list_id", "type"},
			Query: `SELECT ml.list_id, r.request_type, count(*)
				FROM _request r JOIN mailinglist ml ON r.mailing_list_id = ml.id
				GROUP BY 1, 2`,
			Transform: func(row db.Row) []string {
				return []string{LabelValue(row[0]), requestTypeName(row[1])}
			},
		},
		{
			Name:   "bouncing_members_total",
			Help:   "Members with bounce_score > 0",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"list_id"},
			Query: fmt.Sprintf(`SELECT list_id, count(*) FROM member
				WHERE role = %d AND bounce_score > 0 GROUP BY 1`, memberRoleMember),
		},
		{
			Name:   "bounce_events_total",
			Help:   "Bounce events",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"list_id", "processed"},
			Query:  "SELECT list_id, processed, count(*) FROM bounceevent GROUP BY 1, 2",
			Transform: func(row db.Row) []string {
				return []string{LabelValue(row[0]), boolLabel(row[1])}
			},
		},
		{
			Name:   "bans_total",
			Help:   "Number of bans",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"scope"},
			Query: `SELECT CASE WHEN list_id IS NULL THEN 'site' ELSE 'list' END,
				count(*) FROM ban GROUP BY 1`,
		},
		{
			Name:   "header_matches_total",
			Help:   "Number of header match rules",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"header"},
			Query:  "SELECT header, count(*) FROM headermatch GROUP BY 1",
		},
		{
			Name:  "content_filters_total",
			Help:  "Number of content filter rules",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM contentfilter",
		},
		{
			Name:  "acceptable_aliases_total",
			Help:  "Number of acceptable alias entries",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM acceptablealias",
		},
		{
			Name:  "lists_emergency_total",
			Help:  "Number of lists in emergency mode",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM mailinglist WHERE emergency = true",
		},
		{
			Name:  "addresses_total",
			Help:  "Total email addresses",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM address",
		},
		{
			Name:  "addresses_verified_total",
			Help:  "Verified email addresses",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM address WHERE verified_on IS NOT NULL",
		},
		{
			Name:  "pending_tokens_total",
			Help:  "Pending confirmation tokens",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM pended WHERE expiration_date > now()",
		},
		{
			Name:  "pending_tokens_expired_total",
			Help:  "Expired uncleaned pending tokens",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM pended WHERE expiration_date <= now()",
		},
		{
			Name:  "messages_total",
			Help:  "Messages in message store",
			Kind:  prometheus.GaugeValue,
			Query: "SELECT count(*) FROM message",
		},
		{
			Name:   "workflow_states_total",
			Help:   "Active workflow states",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"step"},
			Query:  "SELECT step, count(*) FROM workflowstate GROUP BY 1",
		},
		{
			Name:   "list_last_post_timestamp",
			Help:   "Unix timestamp of last post to list (0 if never posted)",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"list_id"},
			Query: `SELECT list_id, coalesce(extract(epoch FROM last_post_at), 0)::float8
				FROM mailinglist`,
		},
		{
			Name:   "list_created_timestamp",
			Help:   "Unix timestamp of list creation",
			Kind:   prometheus.GaugeValue,
			Labels: []string{"list_id"},
			Query: `SELECT list_id, coalesce(extract(epoch FROM created_at), 0)::float8
				FROM mailinglist`,
		},
	}
}

// LabelValue renders one raw driver value as a label string.
func LabelValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// roleName decodes a member role enum, falling back to the raw value so
// an unexpected migration shows up in the labels instead of vanishing.
func roleName(v any) string {
	if n, ok := asInt64(v); ok {
		if name, ok := roleNames[n]; ok {
			return name
		}
	}
	return LabelValue(v)
}

func requestTypeName(v any) string {
	if n, ok := asInt64(v); ok {
		if name, ok := requestTypeNames[n]; ok {
			return name
		}
	}
	return LabelValue(v)
}

// boolLabel renders booleans as "true"/"false" regardless of whether the
// driver delivers them as bool or integer.
func boolLabel(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatBool(x != 0)
	default:
		return LabelValue(v)
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	case int16:
		return int64(x), true
	}
	return 0, false
}
