package dto

// GroupRequest names a group to add, or the new name on rename.
type GroupRequest struct {
	Name string `json:"name" binding:"required,max=64"`
}

// GroupsResponse lists the tutor's groups after a read or a mutation.
type GroupsResponse struct {
	Groups []string `json:"groups"`
}
