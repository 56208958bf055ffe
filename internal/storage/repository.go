package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/taskd/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// Repository persists templates and instances keyed by id. Records are
// rebuilt through the model's FromPersistence constructors on every read.
type Repository interface {
	SaveTemplate(ctx context.Context, tpl *model.TaskTemplate) error
	GetTemplate(ctx context.Context, id string) (*model.TaskTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, filter TemplateListFilter) ([]*model.TaskTemplate, error)

	SaveInstance(ctx context.Context, inst *model.TaskInstance) error
	// SaveBatch stores a template and a generated batch in one transaction;
	// either every row lands or none does.
	SaveBatch(ctx context.Context, tpl *model.TaskTemplate, insts []*model.TaskInstance) error
	GetInstance(ctx context.Context, id string) (*model.TaskInstance, error)
	DeleteInstance(ctx context.Context, id string) error
	ListInstances(ctx context.Context, filter InstanceListFilter) ([]*model.TaskInstance, error)
}

type TemplateListFilter struct {
	Statuses []model.TemplateStatus
	Limit    int
	Offset   int
}

// InstanceListFilter bounds are inclusive; zero values leave a side open.
type InstanceListFilter struct {
	TemplateID    string
	Statuses      []model.InstanceStatus
	ScheduledFrom time.Time
	ScheduledTo   time.Time
	Limit         int
	Offset        int
}
