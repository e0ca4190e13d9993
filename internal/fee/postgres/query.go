package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/digicoders/feeledger/internal"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	"github.com/digicoders/feeledger/internal/fee"
	"github.com/jmoiron/sqlx"
)

const feeColumns = `f.id, f.registration_id, f.receipt_no, f.tnx_id, f.total_fee, f.discount, f.final_fee,
	f.paid_amount, f.amount, f.due_amount, f.payment_type, f.mode, f.status, f.tnx_status, f.reversed,
	f.installment_no, f.qr_code_id, f.hr_id, f.paid_by, f.verified_by, f.image_url, f.image_storage_id,
	f.remark, f.payment_date, f.created_at, f.updated_at`

const joinedColumns = feeColumns + `,
	r.student_name, r.father_name, r.email, r.mobile, r.user_id AS student_user_id, r.college_name,
	r.branch, r.batch, r.paid_amount AS reg_paid_amount, r.due_amount AS reg_due_amount,
	r.final_fee AS reg_final_fee, r.training_fee_status AS reg_training_fee_status`

const joinedFrom = ` FROM fees f JOIN registrations r ON r.id = f.registration_id`

// sortColumns maps sort_by values onto SQL expressions. Only keys of this map
// ever reach an ORDER BY clause.
var sortColumns = map[string]string{
	"payment_date": "f.payment_date",
	"created_at":   "f.created_at",
	"amount":       "f.amount",
	"paid_amount":  "f.paid_amount",
	"due_amount":   "f.due_amount",
	"receipt_no":   "f.receipt_no",
	"tnx_status":   "f.tnx_status",
	"payment_type": "f.payment_type",
	"mode":         "f.mode",
	"status":       "f.status",
	"student_name": "r.student_name",
}

var searchColumns = []string{
	"r.student_name", "r.email", "r.mobile", "r.user_id", "r.father_name",
	"r.college_name", "r.branch", "r.batch",
	"f.tnx_id", "f.receipt_no", "f.payment_type", "f.mode", "f.tnx_status", "f.status", "f.remark",
}

// QueryRepository serves ledger reads with hand-written joins.
type QueryRepository struct {
	db *sqlx.DB
}

func NewQueryRepository(db *sqlx.DB) fee.QueryRepositoryAPI {
	return &QueryRepository{db: db}
}

func (r *QueryRepository) List(ctx context.Context, filter fee.ListFilter) ([]*feeDatamodel.FeeWithRegistration, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	countQuery := r.db.Rebind("SELECT COUNT(*)" + joinedFrom + where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	rows := make([]*feeDatamodel.FeeWithRegistration, 0)
	if total == 0 {
		return rows, 0, nil
	}

	query := r.db.Rebind("SELECT " + joinedColumns + joinedFrom + where + orderBy(filter) + " LIMIT ? OFFSET ?")
	args = append(args, filter.Limit, filter.Offset())
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return rows, total, nil
}

func (r *QueryRepository) ListByRegistration(ctx context.Context, registrationID int64) ([]*feeDatamodel.Fee, error) {
	fees := make([]*feeDatamodel.Fee, 0)
	query := r.db.Rebind("SELECT " + feeColumns + " FROM fees f WHERE f.registration_id = ? ORDER BY f.payment_date DESC, f.id DESC")
	if err := r.db.SelectContext(ctx, &fees, query, registrationID); err != nil {
		return nil, fmt.Errorf("list registration payments: %w", err)
	}
	return fees, nil
}

func (r *QueryRepository) GetWithRegistration(ctx context.Context, id int64) (*feeDatamodel.FeeWithRegistration, error) {
	return r.getOne(ctx, "SELECT "+joinedColumns+joinedFrom+" WHERE f.id = ?", id)
}

func (r *QueryRepository) GetLatestWithRegistration(ctx context.Context, registrationID int64) (*feeDatamodel.FeeWithRegistration, error) {
	return r.getOne(ctx, "SELECT "+joinedColumns+joinedFrom+
		" WHERE f.registration_id = ? ORDER BY f.payment_date DESC, f.id DESC LIMIT 1", registrationID)
}

func (r *QueryRepository) getOne(ctx context.Context, query string, args ...interface{}) (*feeDatamodel.FeeWithRegistration, error) {
	var row feeDatamodel.FeeWithRegistration
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, internal.ErrFeeNotFound
		}
		return nil, err
	}
	return &row, nil
}

func buildWhere(filter fee.ListFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, values ...interface{}) {
		conds = append(conds, cond)
		args = append(args, values...)
	}

	if filter.Branch != "" {
		add("r.branch = ?", filter.Branch)
	}
	if filter.Batch != "" {
		add("r.batch = ?", filter.Batch)
	}
	if filter.MinPaid != nil {
		add("f.paid_amount >= ?", filter.MinPaid.String())
	}
	if filter.MaxPaid != nil {
		add("f.paid_amount <= ?", filter.MaxPaid.String())
	}
	switch filter.Due {
	case "yes":
		add("r.due_amount > 0")
	case "no":
		add("r.due_amount <= 0")
	}
	if filter.StartDate != nil {
		add("f.payment_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("f.payment_date <= ?", *filter.EndDate)
	}
	if filter.TnxStatus != "" {
		add("f.tnx_status = ?", filter.TnxStatus)
	}
	if filter.PaymentType != "" {
		add("f.payment_type = ?", filter.PaymentType)
	}
	if filter.Mode != "" {
		add("f.mode = ?", filter.Mode)
	}
	if filter.Status != "" {
		add("f.status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		ors := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			ors[i] = fmt.Sprintf(`LOWER(COALESCE(%s, '')) LIKE ? ESCAPE '\'`, col)
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(filter fee.ListFilter) string {
	col, ok := sortColumns[filter.SortBy]
	if !ok {
		col = sortColumns[fee.DefaultSortBy]
	}
	dir := "DESC"
	if filter.SortOrder == "asc" {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, f.id %s", col, dir, dir)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
