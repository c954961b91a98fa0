package workflows

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/apiclient"
	"cstools.thoughtspot.com/taskgroup"
)

// permissionsConcurrency bounds in-flight permission lookups.
// Fetching permissions is expensive for the platform to compute, so
// this stays much lower than the general fetch concurrency.
const permissionsConcurrency = 5

// permissionsTimeout bounds the whole sweep, not any single request;
// a cluster with a very large number of objects can legitimately take
// several minutes to answer every permission lookup.
const permissionsTimeout = 15 * time.Minute

// permissionLookup is one (type, guid) pair's permission result, kept
// together so a failed lookup can be attributed to its object.
type permissionLookup struct {
	ObjectType string
	GUID       string
	Grants     []apiclient.Permission
}

// PermissionsFetch fetches sharing permissions for the given
// type-grouped GUIDs, dispatching each lookup to the V1 or V2 endpoint
// per the connected platform's version (apiclient.Client.FetchPermissions
// already makes that call internally), capped at permissionsConcurrency
// concurrent lookups and permissionsTimeout overall.
func PermissionsFetch(ctx context.Context, client *apiclient.Client, typedGUIDs map[string][]string, logger *logrus.Entry) map[string][]apiclient.Permission {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithTimeout(ctx, permissionsTimeout)
	defer cancel()

	group := taskgroup.New[permissionLookup](permissionsConcurrency)
	for objectType, guids := range typedGUIDs {
		objectType := objectType
		for _, guid := range guids {
			guid := guid
			group.Spawn(ctx, func(ctx context.Context) (permissionLookup, error) {
				grants, err := client.FetchPermissions(ctx, objectType, []string{guid})
				return permissionLookup{ObjectType: objectType, GUID: guid, Grants: grants[guid]}, err
			})
		}
	}

	out := make(map[string][]apiclient.Permission)
	for _, res := range group.Wait() {
		if res.Err != nil {
			logger.WithError(res.Err).WithField("guid", res.Value.GUID).Warn("could not fetch permissions for an object, see logs for details")
			continue
		}
		out[res.Value.GUID] = res.Value.Grants
	}
	return out
}
