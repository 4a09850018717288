package service

import "gradex/internal/domain/model"

// ProjectionService produces the permission-filtered view of a verdict tree
// for a given viewer role. The role is always passed explicitly; nothing here
// reads ambient request state.
type ProjectionService struct{}

func NewProjectionService() *ProjectionService {
	return &ProjectionService{}
}

func visibilitySet(role string) map[model.Permission]bool {
	set := map[model.Permission]bool{model.PermissionStudent: true}
	if role == model.RoleStaff {
		set[model.PermissionStaff] = true
	}
	return set
}

// Project returns a filtered copy of the verdict retaining only content whose
// permission tag is visible to the role. Administrators bypass filtering and
// receive the raw tree. Filtering is applied independently at every nesting
// level: a node's own messages and child groups are each filtered on their
// own tags.
func (s *ProjectionService) Project(verdict *model.Verdict, role string) *model.Verdict {
	if verdict == nil {
		return nil
	}
	if role == model.RoleAdmin {
		return verdict
	}
	visible := visibilitySet(role)

	return &model.Verdict{
		Status:      verdict.Status,
		Accepted:    verdict.Accepted,
		Description: verdict.Description,
		Groups:      filterGroups(verdict.Groups, visible),
		Messages:    filterMessages(verdict.Messages, visible),
	}
}

func filterMessages(messages []model.Message, visible map[model.Permission]bool) []model.Message {
	if messages == nil {
		return nil
	}
	kept := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if visible[model.EffectivePermission(m.Permission)] {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func filterGroups(groups []*model.VerdictGroup, visible map[model.Permission]bool) []*model.VerdictGroup {
	if groups == nil {
		return nil
	}
	kept := make([]*model.VerdictGroup, 0, len(groups))
	for _, g := range groups {
		if !visible[model.EffectivePermission(g.Permission)] {
			continue
		}
		kept = append(kept, &model.VerdictGroup{
			Kind:        g.Kind,
			Description: g.Description,
			Permission:  g.Permission,
			Accepted:    g.Accepted,
			Groups:      filterGroups(g.Groups, visible),
			Messages:    filterMessages(g.Messages, visible),
		})
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
