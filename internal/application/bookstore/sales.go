package bookstore

import (
	"hash/fnv"
	"math/rand"
	"strings"

	"ebook-factory-api/internal/domain/entity"
)

// ReferencePrice 推演用参考单价（美元）
const ReferencePrice = 9.99

// ProjectionMonths 推演覆盖的月份数
const ProjectionMonths = 12

// phaseRange 各阶段的月销量区间
type phaseRange struct {
	phase entity.SalesPhase
	min   int
	max   int
}

// 发布期冲高，增长期回落爬坡，平稳期长尾
var phaseByMonth = [ProjectionMonths]phaseRange{
	{entity.SalesPhaseLaunch, 80, 200},
	{entity.SalesPhaseLaunch, 60, 160},
	{entity.SalesPhaseLaunch, 40, 120},
	{entity.SalesPhaseGrowth, 30, 90},
	{entity.SalesPhaseGrowth, 30, 90},
	{entity.SalesPhaseGrowth, 30, 90},
	{entity.SalesPhaseGrowth, 30, 90},
	{entity.SalesPhaseGrowth, 30, 90},
	{entity.SalesPhaseSteady, 15, 50},
	{entity.SalesPhaseSteady, 15, 50},
	{entity.SalesPhaseSteady, 15, 50},
	{entity.SalesPhaseSteady, 15, 50},
}

// nicheMultiplier 细分市场的需求系数
var nicheMultiplier = map[string]float64{
	"self-help":           1.3,
	"business":            1.2,
	"finance":             1.2,
	"health":              1.1,
	"technology":          1.0,
	"productivity":        1.0,
	"fitness":             0.9,
	"crafts":              0.7,
	"general":             1.0,
	"general non-fiction": 1.0,
}

var salesChannels = []string{"direct", "marketplace", "affiliate"}

// ProjectSales 为一本书合成 12 个月的销售推演
// 纯函数：同一本书（同 ID、同 Niche）总是产出相同的推演行。
func ProjectSales(book *entity.Book) []*entity.SalesProjection {
	rng := rand.New(rand.NewSource(seedFor(book.ID)))

	multiplier := 1.0
	if m, ok := nicheMultiplier[strings.ToLower(strings.TrimSpace(book.Niche))]; ok {
		multiplier = m
	}

	rows := make([]*entity.SalesProjection, 0, ProjectionMonths)
	for month := 1; month <= ProjectionMonths; month++ {
		pr := phaseByMonth[month-1]
		base := pr.min + rng.Intn(pr.max-pr.min+1)
		units := int(float64(base) * multiplier)
		if units < 0 {
			units = 0
		}
		revenue := float64(units) * ReferencePrice

		rows = append(rows, &entity.SalesProjection{
			BookID:  book.ID,
			Month:   month,
			Units:   units,
			Revenue: revenue,
			Channel: salesChannels[rng.Intn(len(salesChannels))],
			Phase:   pr.phase,
		})
	}
	return rows
}

// TotalRevenue 推演行的收入合计
func TotalRevenue(rows []*entity.SalesProjection) float64 {
	var total float64
	for _, row := range rows {
		total += row.Revenue
	}
	return total
}

func seedFor(bookID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(bookID))
	return int64(h.Sum64())
}
