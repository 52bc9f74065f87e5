package job

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
	Logger "github.com/openflock/flockbase/utils/log"
)

// TargetKind names the forms a fetch target may take.
type TargetKind string

const (
	TargetUserId     TargetKind = "user-id"
	TargetScreenName TargetKind = "screen-name"
	TargetList       TargetKind = "list"
	TargetTag        TargetKind = "tag"
)

// Target is one raw fetch target before resolution.
type Target struct {
	Kind  TargetKind
	Value string
}

func (t Target) String() string {
	return string(t.Kind) + ":" + t.Value
}

// ParseUserTargets classifies raw user targets. A leading @ or any
// non-digit character marks a screen name, "tag:" and "list:" prefixes
// reference saved tags and lists. Bare numeric ids and screen names cannot
// mix within one invocation; the ambiguity between "user 123" and "user
// named 123" is not worth guessing about.
func ParseUserTargets(raw []string) ([]Target, error) {
	targets := make([]Target, 0, len(raw))
	ids, names := 0, 0
	for _, value := range raw {
		value = strings.TrimSpace(value)
		switch {
		case value == "":
			continue
		case strings.HasPrefix(value, "tag:"):
			targets = append(targets, Target{Kind: TargetTag, Value: strings.TrimPrefix(value, "tag:")})
		case strings.HasPrefix(value, "list:"):
			ref := strings.TrimPrefix(value, "list:")
			if _, err := ParseListRef(ref); err != nil {
				return nil, err
			}
			targets = append(targets, Target{Kind: TargetList, Value: ref})
		case strings.HasPrefix(value, "@"):
			names++
			targets = append(targets, Target{Kind: TargetScreenName, Value: strings.TrimPrefix(value, "@")})
		case isAllDigits(value):
			ids++
			targets = append(targets, Target{Kind: TargetUserId, Value: value})
		default:
			names++
			targets = append(targets, Target{Kind: TargetScreenName, Value: value})
		}
	}
	if len(targets) == 0 {
		return nil, &ConfigError{Reason: "no user targets given"}
	}
	if ids > 0 && names > 0 {
		return nil, &ConfigError{Reason: "user targets mix numeric ids and screen names"}
	}
	return targets, nil
}

// TagTargets wraps saved tag names as targets.
func TagTargets(names []string) []Target {
	targets := make([]Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, Target{Kind: TargetTag, Value: name})
	}
	return targets
}

// ParseListTargets wraps list references as targets, validating each up
// front. Numeric ids and owner/slug forms may mix freely.
func ParseListTargets(raw []string) ([]Target, error) {
	targets := make([]Target, 0, len(raw))
	for _, value := range raw {
		if _, err := ParseListRef(value); err != nil {
			return nil, err
		}
		targets = append(targets, Target{Kind: TargetList, Value: strings.TrimSpace(value)})
	}
	if len(targets) == 0 {
		return nil, &ConfigError{Reason: "no list targets given"}
	}
	return targets, nil
}

// ListRef is a parsed list reference: either a numeric id or an owner/slug
// pair, never both.
type ListRef struct {
	Id    int64
	Owner string
	Slug  string
}

func (ref ListRef) String() string {
	if ref.Id != 0 {
		return strconv.FormatInt(ref.Id, 10)
	}
	return ref.Owner + "/" + ref.Slug
}

// ParseListRef parses a single list reference.
func ParseListRef(value string) (ListRef, error) {
	value = strings.TrimSpace(value)
	if isAllDigits(value) {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ListRef{}, &ConfigError{Reason: fmt.Sprintf("list id %q does not fit in an int64", value)}
		}
		return ListRef{Id: id}, nil
	}
	parts := strings.SplitN(strings.TrimPrefix(value, "@"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ListRef{}, &ConfigError{Reason: fmt.Sprintf("list target %q is neither a numeric id nor owner/slug", value)}
	}
	return ListRef{Owner: parts[0], Slug: parts[1]}, nil
}

func isAllDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveMode picks where user targets are resolved.
type ResolveMode string

const (
	// ResolveFetch answers from the database where possible and Hydrates the
	// rest through the lookup endpoint, persisting snapshots on the way.
	ResolveFetch ResolveMode = "fetch"
	// ResolveSkip never touches the network; targets the database cannot
	// answer come back unresolved.
	ResolveSkip ResolveMode = "skip"
)

// UnresolvedTarget is a target that could not be mapped to user ids, with
// the reason it could not.
type UnresolvedTarget struct {
	Target Target `json:"target"`
	Reason string `json:"reason"`
}

// Resolution is the outcome of resolving a target sequence: the user ids in
// first-seen order, deduplicated, plus whatever would not resolve.
type Resolution struct {
	UserIds    []int64
	Unresolved []UnresolvedTarget

	// Snapshots counts profile snapshot rows persisted as a side effect of
	// fetch-mode resolution.
	Snapshots int
}

func (res *Resolution) add(seen map[int64]bool, ids ...int64) {
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		res.UserIds = append(res.UserIds, id)
	}
}

func (res *Resolution) miss(target Target, reason string) {
	res.Unresolved = append(res.Unresolved, UnresolvedTarget{Target: target, Reason: reason})
}

// Resolver maps raw targets to user ids, against the database and, in fetch
// mode, the lookup endpoints.
type Resolver struct {
	store  *store.Store
	client *twitter.Client
}

func NewResolver(store *store.Store, client *twitter.Client) *Resolver {
	return &Resolver{store: store, client: client}
}

// ResolveUsers resolves a target sequence to user ids. Targets that fail
// terminally (not found, protected, missing from the database) are reported
// in the resolution rather than aborting the remaining entries; capacity
// exhaustion and database failures abort.
func (r *Resolver) ResolveUsers(ctx context.Context, targets []Target, mode ResolveMode) (*Resolution, error) {
	resolution := &Resolution{}
	seen := make(map[int64]bool)

	// Consecutive same-kind targets resolve as one batch so id and screen
	// name lookups ride the 100-wide lookup endpoint together.
	for start := 0; start < len(targets); {
		end := start
		for end < len(targets) && targets[end].Kind == targets[start].Kind {
			end++
		}
		batch := targets[start:end]
		var err error
		switch batch[0].Kind {
		case TargetUserId:
			err = r.resolveIds(ctx, batch, mode, resolution, seen)
		case TargetScreenName:
			err = r.resolveScreenNames(ctx, batch, mode, resolution, seen)
		case TargetTag:
			err = r.resolveTags(batch, resolution, seen)
		case TargetList:
			err = r.resolveLists(ctx, batch, mode, resolution, seen)
		default:
			err = &ConfigError{Reason: fmt.Sprintf("unknown target kind %q", batch[0].Kind)}
		}
		if err != nil {
			return nil, err
		}
		start = end
	}
	return resolution, nil
}

func (r *Resolver) resolveIds(ctx context.Context, batch []Target, mode ResolveMode, resolution *Resolution, seen map[int64]bool) error {
	ids := make([]int64, 0, len(batch))
	for _, target := range batch {
		id, err := strconv.ParseInt(target.Value, 10, 64)
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("user id %q does not fit in an int64", target.Value)}
		}
		ids = append(ids, id)
	}

	if mode == ResolveSkip {
		// An id needs no lookup to be an id.
		resolution.add(seen, ids...)
		return nil
	}

	known, err := r.store.KnownUserIds(ids)
	if err != nil {
		return err
	}
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, id)
		}
	}

	found := make(map[int64]bool, len(missing))
	if len(missing) > 0 {
		users, err := r.client.LookupUsersByIds(ctx, missing)
		if err != nil && !skippable(err) {
			return err
		}
		if len(users) > 0 {
			written, err := r.store.SaveUserSnapshots(users)
			if err != nil {
				return err
			}
			resolution.Snapshots += written
		}
		for _, user := range users {
			found[user.Id] = true
		}
	}

	for i, id := range ids {
		if known[id] || found[id] {
			resolution.add(seen, id)
		} else {
			resolution.miss(batch[i], "user not found")
		}
	}
	return nil
}

func (r *Resolver) resolveScreenNames(ctx context.Context, batch []Target, mode ResolveMode, resolution *Resolution, seen map[int64]bool) error {
	byName := make(map[string]int64, len(batch))
	missing := make([]string, 0, len(batch))
	for _, target := range batch {
		id, err := r.store.UserIdByScreenName(target.Value)
		if err != nil {
			return err
		}
		if id != 0 {
			byName[strings.ToLower(target.Value)] = id
		} else {
			missing = append(missing, target.Value)
		}
	}

	if mode == ResolveFetch && len(missing) > 0 {
		users, err := r.client.LookupUsersByScreenNames(ctx, missing)
		if err != nil && !skippable(err) {
			return err
		}
		if len(users) > 0 {
			written, err := r.store.SaveUserSnapshots(users)
			if err != nil {
				return err
			}
			resolution.Snapshots += written
		}
		for _, user := range users {
			byName[strings.ToLower(user.ScreenName)] = user.Id
		}
	}

	for _, target := range batch {
		if id, ok := byName[strings.ToLower(target.Value)]; ok {
			resolution.add(seen, id)
		} else if mode == ResolveSkip {
			resolution.miss(target, "screen name has no stored snapshot")
		} else {
			resolution.miss(target, "user not found")
		}
	}
	return nil
}

func (r *Resolver) resolveTags(batch []Target, resolution *Resolution, seen map[int64]bool) error {
	names := make([]string, 0, len(batch))
	for _, target := range batch {
		names = append(names, target.Value)
	}
	members, missing, err := r.store.TagMembers(names)
	if err != nil {
		return err
	}
	resolution.add(seen, members...)

	missed := make(map[string]bool, len(missing))
	for _, name := range missing {
		missed[name] = true
	}
	for _, target := range batch {
		if missed[target.Value] {
			resolution.miss(target, "tag does not exist")
		}
	}
	return nil
}

func (r *Resolver) resolveLists(ctx context.Context, batch []Target, mode ResolveMode, resolution *Resolution, seen map[int64]bool) error {
	for _, target := range batch {
		ref, err := ParseListRef(target.Value)
		if err != nil {
			return err
		}
		if mode == ResolveSkip {
			if ref.Id == 0 {
				resolution.miss(target, "owner/slug list references need the api")
				continue
			}
			ids, err := r.store.OpenListMemberIds(ref.Id)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				resolution.miss(target, "list has no stored members")
				continue
			}
			resolution.add(seen, ids...)
			continue
		}

		list, members, written, err := r.fetchListMembers(ctx, ref)
		if err != nil {
			if skippable(err) {
				resolution.miss(target, err.Error())
				continue
			}
			return err
		}
		Logger.Log.WithField("list", list.Id).Debugln("resolved list target")
		resolution.Snapshots += written
		resolution.add(seen, members...)
	}
	return nil
}

// ResolveList fetches and parses a single list reference.
func (r *Resolver) ResolveList(ctx context.Context, value string) (*twitter.List, error) {
	ref, err := ParseListRef(value)
	if err != nil {
		return nil, err
	}
	if ref.Id != 0 {
		return r.client.GetListById(ctx, ref.Id)
	}
	return r.client.GetListBySlug(ctx, ref.Owner, ref.Slug)
}

func (r *Resolver) fetchListMembers(ctx context.Context, ref ListRef) (*twitter.List, []int64, int, error) {
	var list *twitter.List
	var err error
	if ref.Id != 0 {
		list, err = r.client.GetListById(ctx, ref.Id)
	} else {
		list, err = r.client.GetListBySlug(ctx, ref.Owner, ref.Slug)
	}
	if err != nil {
		return nil, nil, 0, err
	}
	if err := r.store.UpsertList(list); err != nil {
		return nil, nil, 0, err
	}

	written := 0
	var members []int64
	pager := r.client.ListMemberPager(ctx, list.Id)
	for pager.Next() {
		n, err := r.store.SaveUserSnapshots(pager.Users())
		if err != nil {
			return nil, nil, 0, err
		}
		written += n
		members = append(members, pager.Ids()...)
	}
	if err := pager.Err(); err != nil {
		return nil, nil, 0, err
	}
	return list, members, written, nil
}

// HydrateUsers fetches a fresh profile for every user target, persisting
// snapshots in lookup batches. Unlike fetch-mode resolution this refetches
// targets the database already knows; tag and list targets expand to their
// member sets first and those members are refetched too.
func (r *Resolver) HydrateUsers(ctx context.Context, targets []Target) (*Resolution, error) {
	resolution := &Resolution{}
	seen := make(map[int64]bool)

	for start := 0; start < len(targets); {
		end := start
		for end < len(targets) && targets[end].Kind == targets[start].Kind {
			end++
		}
		batch := targets[start:end]
		var err error
		switch batch[0].Kind {
		case TargetUserId:
			err = r.hydrateIds(ctx, batch, resolution, seen)
		case TargetScreenName:
			err = r.hydrateScreenNames(ctx, batch, resolution, seen)
		case TargetTag:
			// Expand to member ids from the store, then refetch those ids
			// like any other id batch.
			expanded, err := r.ResolveUsers(ctx, batch, ResolveFetch)
			if err != nil {
				return nil, err
			}
			resolution.Snapshots += expanded.Snapshots
			resolution.Unresolved = append(resolution.Unresolved, expanded.Unresolved...)
			idTargets := make([]Target, 0, len(expanded.UserIds))
			for _, id := range expanded.UserIds {
				idTargets = append(idTargets, Target{Kind: TargetUserId, Value: strconv.FormatInt(id, 10)})
			}
			if len(idTargets) > 0 {
				if err := r.hydrateIds(ctx, idTargets, resolution, seen); err != nil {
					return nil, err
				}
			}
			start = end
			continue
		case TargetList:
			// Fetch-mode list expansion already walks the member pager and
			// snapshots every member fresh; no second lookup needed.
			expanded, err := r.ResolveUsers(ctx, batch, ResolveFetch)
			if err != nil {
				return nil, err
			}
			resolution.Snapshots += expanded.Snapshots
			resolution.Unresolved = append(resolution.Unresolved, expanded.Unresolved...)
			resolution.add(seen, expanded.UserIds...)
			start = end
			continue
		default:
			err = &ConfigError{Reason: fmt.Sprintf("unknown target kind %q", batch[0].Kind)}
		}
		if err != nil {
			return nil, err
		}
		start = end
	}
	return resolution, nil
}

func (r *Resolver) hydrateIds(ctx context.Context, batch []Target, resolution *Resolution, seen map[int64]bool) error {
	ids := make([]int64, 0, len(batch))
	for _, target := range batch {
		id, err := strconv.ParseInt(target.Value, 10, 64)
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("user id %q does not fit in an int64", target.Value)}
		}
		ids = append(ids, id)
	}

	users, err := r.client.LookupUsersByIds(ctx, ids)
	if err != nil && !skippable(err) {
		return err
	}
	if len(users) > 0 {
		written, err := r.store.SaveUserSnapshots(users)
		if err != nil {
			return err
		}
		resolution.Snapshots += written
	}

	found := make(map[int64]bool, len(users))
	for _, user := range users {
		found[user.Id] = true
	}
	for i, id := range ids {
		if found[id] {
			resolution.add(seen, id)
		} else {
			resolution.miss(batch[i], "user not found")
		}
	}
	return nil
}

func (r *Resolver) hydrateScreenNames(ctx context.Context, batch []Target, resolution *Resolution, seen map[int64]bool) error {
	names := make([]string, 0, len(batch))
	for _, target := range batch {
		names = append(names, target.Value)
	}

	users, err := r.client.LookupUsersByScreenNames(ctx, names)
	if err != nil && !skippable(err) {
		return err
	}
	if len(users) > 0 {
		written, err := r.store.SaveUserSnapshots(users)
		if err != nil {
			return err
		}
		resolution.Snapshots += written
	}

	byName := make(map[string]int64, len(users))
	for _, user := range users {
		byName[strings.ToLower(user.ScreenName)] = user.Id
	}
	for _, target := range batch {
		if id, ok := byName[strings.ToLower(target.Value)]; ok {
			resolution.add(seen, id)
		} else {
			resolution.miss(target, "user not found")
		}
	}
	return nil
}
