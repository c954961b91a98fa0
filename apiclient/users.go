package apiclient

import (
	"context"
	"fmt"
)

// principalSearch, principalCreate, principalUpdate, and
// principalDelete back the Users/Groups/Tags/Orgs/Roles families,
// which all share the same search-create-update-delete shape and
// differ only in path and payload fields.

func (c *Client) principalSearch(ctx context.Context, path string, filter map[string]interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := c.do(ctx, "POST", path, filter, &rows, withCache()); err != nil {
		return nil, fmt.Errorf("apiclient: search %s: %w", path, err)
	}
	return rows, nil
}

func (c *Client) principalMutate(ctx context.Context, path string, body map[string]interface{}) error {
	if err := c.do(ctx, "POST", path, body, nil); err != nil {
		return fmt.Errorf("apiclient: %s: %w", path, err)
	}
	return nil
}

// UsersSearch returns users matching filter (name, GUID, or privilege
// criteria, passed through verbatim).
func (c *Client) UsersSearch(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error) {
	return c.principalSearch(ctx, pathUsersSearch, filter)
}

// UsersCreate creates a user from the given attributes.
func (c *Client) UsersCreate(ctx context.Context, attrs map[string]interface{}) error {
	return c.principalMutate(ctx, pathUsersCreate, attrs)
}

// UsersUpdate updates an existing user identified within attrs.
func (c *Client) UsersUpdate(ctx context.Context, attrs map[string]interface{}) error {
	return c.principalMutate(ctx, pathUsersUpdate, attrs)
}

// UsersDelete removes the named users.
func (c *Client) UsersDelete(ctx context.Context, guids []string) error {
	return c.principalMutate(ctx, pathUsersDelete, map[string]interface{}{"ids": guids})
}

// GroupsSearch returns groups matching filter.
func (c *Client) GroupsSearch(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error) {
	return c.principalSearch(ctx, pathGroupsSearch, filter)
}

// GroupsCreate creates a group from the given attributes.
func (c *Client) GroupsCreate(ctx context.Context, attrs map[string]interface{}) error {
	return c.principalMutate(ctx, pathGroupsCreate, attrs)
}

// GroupsUpdate updates an existing group identified within attrs.
func (c *Client) GroupsUpdate(ctx context.Context, attrs map[string]interface{}) error {
	return c.principalMutate(ctx, pathGroupsUpdate, attrs)
}

// GroupsDelete removes the named groups.
func (c *Client) GroupsDelete(ctx context.Context, guids []string) error {
	return c.principalMutate(ctx, pathGroupsDelete, map[string]interface{}{"ids": guids})
}

// TagsSearch returns tags matching filter.
func (c *Client) TagsSearch(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error) {
	return c.principalSearch(ctx, pathTagsSearch, filter)
}

// TagsCreate creates a tag with the given name and color.
func (c *Client) TagsCreate(ctx context.Context, attrs map[string]interface{}) error {
	return c.principalMutate(ctx, pathTagsCreate, attrs)
}

// TagsUpdate updates an existing tag identified within attrs.
func (c *Client) TagsUpdate(ctx context.Context, attrs map[string]interface{}) error {
	return c.principalMutate(ctx, pathTagsUpdate, attrs)
}

// TagsDelete removes the named tags.
func (c *Client) TagsDelete(ctx context.Context, guids []string) error {
	return c.principalMutate(ctx, pathTagsDelete, map[string]interface{}{"ids": guids})
}

// OrgsSearch returns orgs matching filter. Only meaningful on clusters
// with orgs enabled; callers should check Session().OrgsEnabled first.
func (c *Client) OrgsSearch(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error) {
	return c.principalSearch(ctx, pathOrgsSearch, filter)
}

// RolesSearch returns roles matching filter.
func (c *Client) RolesSearch(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error) {
	return c.principalSearch(ctx, pathRolesSearch, filter)
}
