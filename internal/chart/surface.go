package chart

// Surface растровый бэкенд, исполняющий команды
type Surface interface {
	Line(a, b Point, color Color, dashed bool)
	Polyline(points []Point, color Color)
	FillRect(r Rect, color Color)
	FillPolygon(points []Point, color Color)
	Text(at Point, text string, color Color)
}

// Paint исполняет команды по порядку, более поздние перекрывают ранние
func Paint(s Surface, cmds []Command) {
	for _, c := range cmds {
		switch c.Op {
		case OpLine:
			if len(c.Points) == 2 {
				s.Line(c.Points[0], c.Points[1], c.Color, c.Dashed)
			}
		case OpPolyline:
			s.Polyline(c.Points, c.Color)
		case OpFillRect:
			s.FillRect(c.Rect, c.Color)
		case OpFillPolygon:
			s.FillPolygon(c.Points, c.Color)
		case OpText:
			if len(c.Points) > 0 {
				s.Text(c.Points[0], c.Text, c.Color)
			}
		}
	}
}
