package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemType 是目录中的物品类别。推荐链路只认这五类，新增类别需要同时扩展 ItemSummary。
type ItemType string

const (
	ItemTypeRecipe ItemType = "recipe" // 菜谱
	ItemTypePhone  ItemType = "phone"  // 手机
	ItemTypeCake   ItemType = "cake"   // 蛋糕
	ItemTypePlace  ItemType = "place"  // 地点
	ItemTypeSport  ItemType = "sport"  // 体育用品
)

// AllItemTypes 按固定顺序返回全部类别，用于确定性遍历。
func AllItemTypes() []ItemType {
	return []ItemType{ItemTypeRecipe, ItemTypePhone, ItemTypeCake, ItemTypePlace, ItemTypeSport}
}

// ParseItemType 校验并解析类别字符串。
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ItemTypeRecipe, ItemTypePhone, ItemTypeCake, ItemTypePlace, ItemTypeSport:
		return t, nil
	}
	return "", NewDomainError(ModuleCore, ErrorCodeInvalidInput, fmt.Sprintf("core: unknown item type %q", s))
}

// ItemKey 是 (itemType, itemId) 二元组，是候选合并、去重、归因的唯一标识。
type ItemKey struct {
	Type ItemType `json:"item_type"`
	ID   int64    `json:"item_id"`
}

func (k ItemKey) String() string {
	return string(k.Type) + ":" + strconv.FormatInt(k.ID, 10)
}

// Less 定义确定性顺序：先按类别，再按 ID 升序。
func (k ItemKey) Less(o ItemKey) bool {
	if k.Type != o.Type {
		return k.Type < o.Type
	}
	return k.ID < o.ID
}

// ItemSummary 是目录物品的展示摘要，按类别封闭（只有本包内的变体实现该接口）。
// 排序核心只通过 Key / Attributes / Base 访问，不做字符串 key 的字段读取。
type ItemSummary interface {
	Key() ItemKey
	Base() SummaryBase
	// Attributes 返回用于相似度计算的属性 token，例如 "categoria=postres"
	Attributes() []string
	isItemSummary()
}

// SummaryBase 是所有类别共有的展示字段。
type SummaryBase struct {
	ID              int64   `json:"id"`
	Nombre          string  `json:"nombre"`
	Descripcion     string  `json:"descripcion"`
	ImagenPrincipal string  `json:"imagenPrincipal"`
	Popularity      float64 `json:"popularity"` // [0,1]，目录侧给出的热度
}

type RecipeSummary struct {
	SummaryBase
	Categoria         string `json:"categoria"`
	Dificultad        string `json:"dificultad"`
	TiempoPreparacion int    `json:"tiempoPreparacion"` // 分钟
}

type PhoneSummary struct {
	SummaryBase
	Marca  string  `json:"marca"`
	Precio float64 `json:"precio"`
	Gama   string  `json:"gama"`
}

type CakeSummary struct {
	SummaryBase
	Sabor     string `json:"sabor"`
	Ocasion   string `json:"ocasion"`
	Porciones int    `json:"porciones"`
}

type PlaceSummary struct {
	SummaryBase
	Ciudad string `json:"ciudad"`
	Tipo   string `json:"tipo"`
}

type SportSummary struct {
	SummaryBase
	Deporte string  `json:"deporte"`
	Marca   string  `json:"marca"`
	Precio  float64 `json:"precio"`
}

func (s *RecipeSummary) Key() ItemKey       { return ItemKey{Type: ItemTypeRecipe, ID: s.ID} }
func (s *RecipeSummary) Base() SummaryBase  { return s.SummaryBase }
func (s *RecipeSummary) isItemSummary()     {}
func (s *PhoneSummary) Key() ItemKey        { return ItemKey{Type: ItemTypePhone, ID: s.ID} }
func (s *PhoneSummary) Base() SummaryBase   { return s.SummaryBase }
func (s *PhoneSummary) isItemSummary()      {}
func (s *CakeSummary) Key() ItemKey         { return ItemKey{Type: ItemTypeCake, ID: s.ID} }
func (s *CakeSummary) Base() SummaryBase    { return s.SummaryBase }
func (s *CakeSummary) isItemSummary()       {}
func (s *PlaceSummary) Key() ItemKey        { return ItemKey{Type: ItemTypePlace, ID: s.ID} }
func (s *PlaceSummary) Base() SummaryBase   { return s.SummaryBase }
func (s *PlaceSummary) isItemSummary()      {}
func (s *SportSummary) Key() ItemKey        { return ItemKey{Type: ItemTypeSport, ID: s.ID} }
func (s *SportSummary) Base() SummaryBase   { return s.SummaryBase }
func (s *SportSummary) isItemSummary()      {}

func (s *RecipeSummary) Attributes() []string {
	return attrs("categoria", s.Categoria, "dificultad", s.Dificultad)
}

func (s *PhoneSummary) Attributes() []string {
	return attrs("marca", s.Marca, "gama", s.Gama)
}

func (s *CakeSummary) Attributes() []string {
	return attrs("sabor", s.Sabor, "ocasion", s.Ocasion)
}

func (s *PlaceSummary) Attributes() []string {
	return attrs("ciudad", s.Ciudad, "tipo", s.Tipo)
}

func (s *SportSummary) Attributes() []string {
	return attrs("deporte", s.Deporte, "marca", s.Marca)
}

// attrs 把 name/value 对拼成 "name=value" token，跳过空值。
func attrs(pairs ...string) []string {
	out := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		v := strings.ToLower(strings.TrimSpace(pairs[i+1]))
		if v == "" {
			continue
		}
		out = append(out, pairs[i]+"="+v)
	}
	return out
}
