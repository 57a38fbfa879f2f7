package fixed

var (
	NegOne = FromInt64(-1, 0)
	Zero   = FromInt64(0, 0)
	One    = FromInt64(1, 0)
	Two    = FromInt64(2, 0)
	Three  = FromInt64(3, 0)
	Four   = FromInt64(4, 0)
	Five   = FromInt64(5, 0)
	Ten    = FromInt64(10, 0)

	PointOne  = FromInt64(1, 1)
	PointFive = FromInt64(5, 1)

	Hundred     = FromInt64(100, 0)
	BasisPoints = FromInt64(10000, 0)

	// Sqrt252 annualizes daily ratios (trading days per year).
	Sqrt252 = FromInt64(1587450786638754, 14)
)
