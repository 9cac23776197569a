package engine

// attackOrder returns the sides that attack this turn, fastest first.
// Equal speed is not random: SideA acts first.
func attackOrder(s State, moves [2]PendingMove) []Side {
	order := make([]Side, 0, 2)
	for _, side := range Sides {
		if moves[side.Index()].Kind == MoveAttack {
			order = append(order, side)
		}
	}
	if len(order) < 2 {
		return order
	}

	a := s.Roster(SideA).ActiveFighter()
	b := s.Roster(SideB).ActiveFighter()
	if a != nil && b != nil && b.Speed > a.Speed {
		order[0], order[1] = SideB, SideA
	}
	return order
}
