package model

import "encoding/json"

// GoatedWagered Goated接口返回的原始投注额对象（字段可能缺失，缺失按0处理）
type GoatedWagered struct {
	Today     float64 `json:"today"`
	ThisWeek  float64 `json:"this_week"`
	ThisMonth float64 `json:"this_month"`
	AllTime   float64 `json:"all_time"`
}

// GoatedEntry Goated接口返回的原始玩家条目
type GoatedEntry struct {
	UID     string         `json:"uid"`
	Name    string         `json:"name"`
	Wagered *GoatedWagered `json:"wagered"` // 为nil视为脏数据，整条丢弃
}

// goatedEnvelope 响应外壳：可能是 {data: []}、{results: []} 或裸数组
type goatedEnvelope struct {
	Data    []GoatedEntry `json:"data"`
	Results []GoatedEntry `json:"results"`
}

// DecodeGoatedEntries 兼容三种响应外壳，解出原始条目列表
func DecodeGoatedEntries(raw []byte) ([]GoatedEntry, error) {
	var list []GoatedEntry
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var env goatedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if len(env.Data) > 0 {
		return env.Data, nil
	}
	return env.Results, nil
}
