package apiclient

// Endpoint paths, matched byte-for-byte against the remote platform.
const (
	pathLogin        = "api/rest/2.0/auth/session/login"
	pathTokenFull    = "api/rest/2.0/auth/token/full"
	pathLogout       = "api/rest/2.0/auth/session/logout"
	pathV1TokenAuth  = "callosum/v1/tspublic/v1/session/auth/token"
	pathV1TokenLogin = "callosum/v1/session/login/token"

	pathSessionUser = "api/rest/2.0/auth/session/user"
	pathIsActive    = "callosum/v1/session/isactive"

	pathMetadataSearch     = "api/rest/2.0/metadata/search"
	pathMetadataDelete     = "api/rest/2.0/metadata/delete"
	pathTMLExport          = "api/rest/2.0/metadata/tml/export"
	pathTMLImport          = "api/rest/2.0/metadata/tml/import"
	pathTMLAsyncImport     = "api/rest/2.0/metadata/tml/async/import"
	pathTMLAsyncStatus     = "api/rest/2.0/metadata/tml/async/status"

	pathPermissionsFetch = "api/rest/2.0/security/metadata/fetch-permissions"
	pathPermissionsShare = "api/rest/2.0/security/metadata/share"
	pathPermissionsAssign = "api/rest/2.0/security/metadata/assign"
	pathV1Permissions     = "callosum/v1/tspublic/v1/security/metadata/permissions"

	pathUsersSearch  = "api/rest/2.0/users/search"
	pathUsersCreate  = "api/rest/2.0/users/create"
	pathUsersUpdate  = "api/rest/2.0/users/update"
	pathUsersDelete  = "api/rest/2.0/users/delete"
	pathGroupsSearch = "api/rest/2.0/groups/search"
	pathGroupsCreate = "api/rest/2.0/groups/create"
	pathGroupsUpdate = "api/rest/2.0/groups/update"
	pathGroupsDelete = "api/rest/2.0/groups/delete"
	pathTagsSearch   = "api/rest/2.0/tags/search"
	pathTagsCreate   = "api/rest/2.0/tags/create"
	pathTagsUpdate   = "api/rest/2.0/tags/update"
	pathTagsDelete   = "api/rest/2.0/tags/delete"
	pathOrgsSearch   = "api/rest/2.0/orgs/search"
	pathRolesSearch  = "api/rest/2.0/roles/search"

	pathVCSGitConfigSearch = "api/rest/2.0/vcs/git/config/search"
	pathVCSGitConfigCreate = "api/rest/2.0/vcs/git/config/create"
	pathVCSGitBranchesCommit   = "api/rest/2.0/vcs/git/branches/commit"
	pathVCSGitBranchesValidate = "api/rest/2.0/vcs/git/branches/validate"
	pathVCSGitCommitsDeploy    = "api/rest/2.0/vcs/git/commits/deploy"

	pathSearchData = "api/rest/2.0/searchdata"
	pathLogsFetch  = "api/rest/2.0/logs/fetch"

	pathDataLoadSession    = "ts_dataservice/v1/public/session"
	pathDataLoadInitialize = "ts_dataservice/v1/public/loads"
	pathDataLoadStart      = "ts_dataservice/v1/public/loads/%s"
	pathDataLoadCommit     = "ts_dataservice/v1/public/loads/%s/commit"
	pathDataLoadStatus     = "ts_dataservice/v1/public/loads/%s"
	pathDataLoadBadRecords = "ts_dataservice/v1/public/loads/%s/bad_records_file"

	pathRemoteTQLQuery = "ts_dataservice/v1/public/tql/query"
)

// DataServicePort is the sibling port data-load endpoints run on when
// no node redirect has been issued.
const DataServicePort = 8442
