package fixed

func Sum(points []Point) Point {
	sum := Zero
	for _, point := range points {
		sum = sum.Add(point)
	}
	return sum
}

func Mean(points []Point) Point {
	if len(points) == 0 {
		return Zero
	}
	return Sum(points).DivInt(len(points))
}

func Variance(points []Point, mean Point) Point {
	if len(points) <= 1 {
		return Zero
	}
	return sumSquaredDiff(points, mean).DivInt(len(points))
}

func SampleVariance(points []Point, mean Point) Point {
	if len(points) <= 1 {
		return Zero
	}
	return sumSquaredDiff(points, mean).DivInt(len(points) - 1)
}

func StdDev(points []Point, mean Point) Point {
	return Variance(points, mean).Sqrt()
}

func SampleStdDev(points []Point, mean Point) Point {
	return SampleVariance(points, mean).Sqrt()
}

// DownsideDev is the root mean square of the shortfalls below target, taken
// over every observation.
func DownsideDev(points []Point, target Point) Point {
	if len(points) <= 1 {
		return Zero
	}

	sum := Zero
	for _, point := range points {
		if point.Lt(target) {
			diff := point.Sub(target)
			sum = sum.Add(diff.Mul(diff))
		}
	}

	if sum.IsZero() {
		return Zero
	}
	return sum.DivInt(len(points) - 1).Sqrt()
}

func SharpeRatio(points []Point, riskFreeRate Point) Point {
	if len(points) <= 1 {
		return Zero
	}

	mean := Mean(points)
	volatility := SampleStdDev(points, mean)
	if volatility.IsZero() {
		return Zero
	}

	return mean.Sub(riskFreeRate).Div(volatility)
}

func SortinoRatio(points []Point, riskFreeRate Point) Point {
	if len(points) <= 1 {
		return Zero
	}

	mean := Mean(points)
	downsideDeviation := DownsideDev(points, riskFreeRate)
	if downsideDeviation.IsZero() {
		return Zero
	}

	return mean.Sub(riskFreeRate).Div(downsideDeviation)
}

func sumSquaredDiff(points []Point, mean Point) Point {
	sum := Zero
	for _, point := range points {
		diff := point.Sub(mean)
		sum = sum.Add(diff.Mul(diff))
	}
	return sum
}
