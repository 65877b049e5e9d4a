package repository

import (
	"context"
	"errors"
	"fmt"

	"loanbook/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidField 字段不在封闭集合内（防止任意列名拼进SQL）
	ErrInvalidField = errors.New("无效的统计字段名")
	// ErrInvalidScope 字段在该聚合层级上不存在
	ErrInvalidScope = errors.New("该统计层级不支持此字段")
)

// Field 聚合字段标识（封闭枚举，编译期常量解析为列名）
type Field string

const (
	FieldValidOrders      Field = "valid_orders"
	FieldValidAmount      Field = "valid_amount"
	FieldLiquidFunds      Field = "liquid_funds"
	FieldNewClients       Field = "new_clients"
	FieldNewClientsAmount Field = "new_clients_amount"
	FieldOldClients       Field = "old_clients"
	FieldOldClientsAmount Field = "old_clients_amount"
	FieldInterest         Field = "interest"
	FieldCompletedOrders  Field = "completed_orders"
	FieldCompletedAmount  Field = "completed_amount"
	FieldBreachOrders     Field = "breach_orders"
	FieldBreachAmount     Field = "breach_amount"
	FieldBreachEndOrders  Field = "breach_end_orders"
	FieldBreachEndAmount  Field = "breach_end_amount"
	FieldLiquidFlow       Field = "liquid_flow"
	FieldCompanyExpenses  Field = "company_expenses"
	FieldOtherExpenses    Field = "other_expenses"
)

// ScopeKind 聚合层级
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeGroup
	ScopeDaily
)

// Scope 增量更新的目标：全局 / 归属ID / 业务日期（可带归属ID）
type Scope struct {
	Kind    ScopeKind
	GroupID string
	Date    string
}

func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

func GroupScope(groupID string) Scope {
	return Scope{Kind: ScopeGroup, GroupID: groupID}
}

// DailyScope groupID 为空表示该日期的全局行
func DailyScope(date, groupID string) Scope {
	return Scope{Kind: ScopeDaily, Date: date, GroupID: groupID}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeGroup:
		return fmt.Sprintf("group:%s", s.GroupID)
	case ScopeDaily:
		if s.GroupID != "" {
			return fmt.Sprintf("daily:%s:%s", s.Date, s.GroupID)
		}
		return fmt.Sprintf("daily:%s", s.Date)
	default:
		return "global"
	}
}

// resolveColumn 将字段枚举解析为列名，并校验该层级是否持有此列。
// 任何未知字段直接拒绝，杜绝自由列名写入。
func resolveColumn(field Field, kind ScopeKind) (string, error) {
	switch field {
	case FieldValidOrders, FieldValidAmount:
		if kind == ScopeDaily {
			return "", ErrInvalidScope
		}
	case FieldLiquidFunds:
		if kind == ScopeDaily {
			return "", ErrInvalidScope
		}
	case FieldLiquidFlow, FieldCompanyExpenses, FieldOtherExpenses:
		if kind != ScopeDaily {
			return "", ErrInvalidScope
		}
	case FieldNewClients, FieldNewClientsAmount,
		FieldOldClients, FieldOldClientsAmount,
		FieldInterest,
		FieldCompletedOrders, FieldCompletedAmount,
		FieldBreachOrders, FieldBreachAmount,
		FieldBreachEndOrders, FieldBreachEndAmount:
		// 三个层级都有
	default:
		return "", ErrInvalidField
	}
	return string(field), nil
}

// LedgerRepository 滚动统计表仓储
//
// 唯一写入口是 ApplyDelta：目标行不存在时先按全零插入（幂等 upsert），
// 再用 UPDATE col = col + ? 做原子增量。
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// ApplyDelta 对指定层级/字段应用带符号增量
func (r *LedgerRepository) ApplyDelta(ctx context.Context, tx *gorm.DB, scope Scope, field Field, delta decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}

	col, err := resolveColumn(field, scope.Kind)
	if err != nil {
		return fmt.Errorf("%w: %s (%s)", err, field, scope)
	}

	switch scope.Kind {
	case ScopeGlobal:
		id, err := r.ensureGlobal(ctx, tx)
		if err != nil {
			return err
		}
		return tx.WithContext(ctx).
			Model(&model.FinancialData{}).
			Where("id = ?", id).
			UpdateColumn(col, gorm.Expr(col+" + ?", delta)).Error

	case ScopeGroup:
		if scope.GroupID == "" {
			return errors.New("group_id 不能为空")
		}
		if err := r.ensureGroup(ctx, tx, scope.GroupID); err != nil {
			return err
		}
		return tx.WithContext(ctx).
			Model(&model.GroupedData{}).
			Where("group_id = ?", scope.GroupID).
			UpdateColumn(col, gorm.Expr(col+" + ?", delta)).Error

	case ScopeDaily:
		if scope.Date == "" {
			return errors.New("date 不能为空")
		}
		if err := r.ensureDaily(ctx, tx, scope.Date, scope.GroupID); err != nil {
			return err
		}
		return tx.WithContext(ctx).
			Model(&model.DailyData{}).
			Where("date = ? AND group_id = ?", scope.Date, scope.GroupID).
			UpdateColumn(col, gorm.Expr(col+" + ?", delta)).Error
	}

	return fmt.Errorf("未知的统计层级: %d", scope.Kind)
}

// ensureGlobal 返回当前全局统计行的 id（取 id 最大的一行，不存在则创建全零行）
func (r *LedgerRepository) ensureGlobal(ctx context.Context, tx *gorm.DB) (int64, error) {
	var row model.FinancialData
	err := tx.WithContext(ctx).Order("id DESC").First(&row).Error
	if err == nil {
		return row.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	row = model.FinancialData{}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (r *LedgerRepository) ensureGroup(ctx context.Context, tx *gorm.DB, groupID string) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}},
			DoNothing: true,
		}).
		Create(&model.GroupedData{GroupID: groupID}).Error
}

func (r *LedgerRepository) ensureDaily(ctx context.Context, tx *gorm.DB, date, groupID string) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "group_id"}},
			DoNothing: true,
		}).
		Create(&model.DailyData{Date: date, GroupID: groupID}).Error
}

// GetGlobal 获取全局统计（无数据时返回全零快照）
func (r *LedgerRepository) GetGlobal(ctx context.Context) (*model.FinancialData, error) {
	var row model.FinancialData
	err := r.db.WithContext(ctx).Order("id DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.FinancialData{}, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetGroup 获取归属ID统计（无数据时返回全零快照）
func (r *LedgerRepository) GetGroup(ctx context.Context, groupID string) (*model.GroupedData, error) {
	var row model.GroupedData
	err := r.db.WithContext(ctx).Where("group_id = ?", groupID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.GroupedData{GroupID: groupID}, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListGroups 获取全部归属ID统计
func (r *LedgerRepository) ListGroups(ctx context.Context) ([]*model.GroupedData, error) {
	var rows []*model.GroupedData
	err := r.db.WithContext(ctx).Order("group_id").Find(&rows).Error
	return rows, err
}

// GetDaily 获取日结统计（groupID 为空表示全局行；无数据时返回全零快照）
func (r *LedgerRepository) GetDaily(ctx context.Context, date, groupID string) (*model.DailyData, error) {
	var row model.DailyData
	err := r.db.WithContext(ctx).Where("date = ? AND group_id = ?", date, groupID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.DailyData{Date: date, GroupID: groupID}, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListDailyByDate 获取某业务日期的全部日结行
func (r *LedgerRepository) ListDailyByDate(ctx context.Context, date string) ([]*model.DailyData, error) {
	var rows []*model.DailyData
	err := r.db.WithContext(ctx).Where("date = ?", date).Order("group_id").Find(&rows).Error
	return rows, err
}

// ListDailyAll 获取全部日结行（对账用）
func (r *LedgerRepository) ListDailyAll(ctx context.Context) ([]*model.DailyData, error) {
	var rows []*model.DailyData
	err := r.db.WithContext(ctx).Order("date, group_id").Find(&rows).Error
	return rows, err
}
