package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

type CategoryRepo struct {
	db *bun.DB
}

var _ store.CategoryReader = (*CategoryRepo)(nil)

func NewCategoryRepo(db *bun.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Categories(ctx context.Context, ids []int64) (map[int64]domain.Category, error) {
	out := make(map[int64]domain.Category, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []domain.Category
	err := r.db.NewSelect().
		Model(&rows).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}
