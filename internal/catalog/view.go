package catalog

import (
	"strings"

	"github.com/hitoshi/tipflix/internal/model"
)

// View は公開サイトの画面を表す。
type View int

const (
	ViewHome View = iota
	ViewCategories
	ViewSearch
	ViewDetails
)

// String は画面名を返す。
func (v View) String() string {
	switch v {
	case ViewHome:
		return "home"
	case ViewCategories:
		return "categories"
	case ViewSearch:
		return "search"
	case ViewDetails:
		return "details"
	default:
		return "unknown"
	}
}

// ParseNavigableView はグローバルナビゲーションの遷移先を解析する。
// Detailsは映画の選択でのみ遷移するため受け付けない。
func ParseNavigableView(s string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "home":
		return ViewHome, nil
	case "categories":
		return ViewCategories, nil
	case "search":
		return ViewSearch, nil
	default:
		return ViewHome, model.NewInvalidViewError(s)
	}
}

// Controller は閲覧者1人分の画面遷移を管理する状態機械。
// 並行呼び出しには対応しないため、呼び出し側で排他すること。
type Controller struct {
	view        View
	selected    *model.Movie
	server      model.StreamServer
	scrollReset bool
}

// NewController はHome画面から始まるControllerを生成する。
func NewController() *Controller {
	return &Controller{view: ViewHome, server: model.Server1}
}

// View は現在の画面を返す。
func (c *Controller) View() View {
	return c.view
}

// Selected は選択中の映画を返す。
func (c *Controller) Selected() (model.Movie, bool) {
	if c.selected == nil {
		return model.Movie{}, false
	}
	return *c.selected, true
}

// ActiveServer は詳細画面で再生するサーバーを返す。
func (c *Controller) ActiveServer() model.StreamServer {
	return c.server
}

// SelectMovie は映画を選択して詳細画面へ遷移する。
// 選択時点の映画をコピーして保持し、サーバーはserver1に戻す。
func (c *Controller) SelectMovie(m model.Movie) {
	copied := m
	copied.Genres = append([]string(nil), m.Genres...)
	c.selected = &copied
	c.view = ViewDetails
	c.server = model.Server1
	c.scrollReset = true
}

// Back は詳細画面からHomeへ戻る。詳細画面以外では何もしない。
// 選択中の映画はクリアしない。
func (c *Controller) Back() bool {
	if c.view != ViewDetails {
		return false
	}
	c.view = ViewHome
	c.scrollReset = true
	return true
}

// Navigate はグローバルナビゲーションで画面を切り替える。フィルタ状態には触れない。
func (c *Controller) Navigate(v View) error {
	if v == ViewDetails {
		return model.NewInvalidViewError(v.String())
	}
	c.view = v
	return nil
}

// ActivateLogo はロゴ押下でHomeへ戻る。
func (c *Controller) ActivateLogo() {
	c.view = ViewHome
	c.scrollReset = true
}

// SelectServer は再生サーバーを切り替える。
func (c *Controller) SelectServer(s model.StreamServer) {
	c.server = s
}

// TakeScrollReset はスクロール位置リセットの要求を取り出す。一度読むとfalseに戻る。
func (c *Controller) TakeScrollReset() bool {
	reset := c.scrollReset
	c.scrollReset = false
	return reset
}
