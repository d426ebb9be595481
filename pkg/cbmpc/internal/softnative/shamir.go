package softnative

// shamirSplit returns n shares of secret, the evaluations at 1..n of a random
// polynomial of degree t-1 with constant term secret.
func shamirSplit(secret *scalar, t, n int) ([]*scalar, error) {
	coeffs := make([]*scalar, t)
	coeffs[0] = secret
	for i := 1; i < t; i++ {
		c, err := randScalar()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	shares := make([]*scalar, n)
	for i := range shares {
		var x scalar
		x.SetInt(uint32(i + 1))
		// Horner.
		var y scalar
		for k := t - 1; k >= 0; k-- {
			y.Mul(&x)
			y.Add(coeffs[k])
		}
		shares[i] = &y
	}
	return shares, nil
}

// shamirCombine interpolates the polynomial through (xs[i], ys[i]) at zero.
func shamirCombine(xs []int64, ys []*scalar) *scalar {
	var secret scalar
	for i := range xs {
		var num, den scalar
		num.SetInt(1)
		den.SetInt(1)
		for k := range xs {
			if k == i {
				continue
			}
			var xk, diff scalar
			xk.SetInt(uint32(xs[k]))
			num.Mul(&xk)
			diff.SetInt(uint32(xs[i]))
			diff.Negate().Add(&xk)
			den.Mul(&diff)
		}
		den.InverseNonConst()
		num.Mul(&den).Mul(ys[i])
		secret.Add(&num)
	}
	return &secret
}
