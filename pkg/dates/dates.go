package dates

import (
	"fmt"
	"time"
)

// DateLayout 业务日期统一使用 YYYY-MM-DD 格式
const DateLayout = "2006-01-02"

// 周分组名称（周一到周日）
var weekdayNames = map[time.Weekday]string{
	time.Monday:    "一",
	time.Tuesday:   "二",
	time.Wednesday: "三",
	time.Thursday:  "四",
	time.Friday:    "五",
	time.Saturday:  "六",
	time.Sunday:    "日",
}

// Calendar 业务日历
//
// 日结周期不按自然日切分，而是按固定的日切小时：
// 当前时间 >= cutoffHour 时，算作下一天的业务日期。
// 所有日结数据（daily_data）和撤销窗口都以业务日期为准。
type Calendar struct {
	loc        *time.Location
	cutoffHour int
}

// NewCalendar 创建业务日历
func NewCalendar(timezone string, cutoffHour int) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}
	if cutoffHour < 0 || cutoffHour > 23 {
		return nil, fmt.Errorf("无效的日切小时: %d", cutoffHour)
	}
	return &Calendar{loc: loc, cutoffHour: cutoffHour}, nil
}

// Now 当前业务时区时间
func (c *Calendar) Now() time.Time {
	return time.Now().In(c.loc)
}

// PeriodDate 当前日结周期对应的业务日期
func (c *Calendar) PeriodDate() string {
	return c.PeriodDateAt(time.Now())
}

// PeriodDateAt 指定时刻所属的业务日期
func (c *Calendar) PeriodDateAt(t time.Time) string {
	t = t.In(c.loc)
	if t.Hour() >= c.cutoffHour {
		t = t.AddDate(0, 0, 1)
	}
	return t.Format(DateLayout)
}

// Today 业务时区下的自然日期
func (c *Calendar) Today() string {
	return c.Now().Format(DateLayout)
}

// WeekdayGroup 根据订单日期推导周分组（用于搜索时按星期均匀分配）
func WeekdayGroup(date string) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("无效的日期格式: %s", date)
	}
	return weekdayNames[t.Weekday()], nil
}

// ValidDate 校验日期格式
func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}
