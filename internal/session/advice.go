package session

import "github.com/wonny/tailgame/internal/contracts"

// PlanNote is attached to every next-day plan
const PlanNote = "建议次日开盘观察10-30分钟再决定是否介入"

// Advice comments on the first pick
func Advice(p *contracts.Pick) string {
	switch {
	case p == nil:
		return ""
	case p.ChangePct > 6:
		return "涨幅较大，建议观望或轻仓参与"
	case p.ChangePct < 0:
		return "当前下跌，观察是否有反弹机会"
	default:
		return "可考虑逢低关注"
	}
}

// Plan sizes the next-day position of the locked pick
func Plan(p *contracts.Pick) *contracts.TradePlan {
	switch {
	case p == nil:
		return nil
	case p.ChangePct < 0:
		return &contracts.TradePlan{Position: "10-20%", StopLoss: -3, Note: PlanNote}
	case p.ChangePct < 3:
		return &contracts.TradePlan{Position: "20-30%", StopLoss: -2, Note: PlanNote}
	default:
		return &contracts.TradePlan{Position: "15-25%", StopLoss: -2.5, Note: PlanNote}
	}
}
